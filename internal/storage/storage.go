package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrUploadFailed - ошибка при сохранении файла.
var ErrUploadFailed = errors.New("audio upload failed")

// Storage - адаптер хранилища аудиофайлов.
type Storage interface {
	// Upload сохраняет данные по относительному пути и возвращает публичный URL.
	Upload(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// fileStorage сохраняет аудио на смонтированный volume и отдает публичный URL
// (файлы раздаются nginx-ом по AUDIO_PUBLIC_BASE_URL).
type fileStorage struct {
	basePath string
	baseURL  string
	logger   *zap.Logger
}

// NewFileStorage создает файловое хранилище.
func NewFileStorage(basePath, publicBaseURL string, logger *zap.Logger) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("audio storage path (AUDIO_STORAGE_PATH) is not configured")
	}
	if publicBaseURL == "" {
		return nil, errors.New("audio public base URL (AUDIO_PUBLIC_BASE_URL) is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		logger:   logger.Named("FileStorage"),
	}, nil
}

// Upload записывает файл и возвращает его публичный URL.
func (s *fileStorage) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if path == "" || strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: invalid path %q", ErrUploadFailed, path)
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create storage directory", zap.String("path", fullPath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		s.logger.Error("Failed to save audio file", zap.String("path", fullPath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url := s.baseURL + "/" + strings.TrimLeft(path, "/")
	s.logger.Debug("Audio file saved",
		zap.String("path", fullPath),
		zap.String("url", url),
		zap.Int("size_bytes", len(data)),
		zap.String("content_type", contentType))
	return url, nil
}
