package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tts-server/internal/models"
)

// DBTX - минимальный контракт пула/транзакции pgx, который нужен репозиториям.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter открывает транзакции (реализуется pgxpool.Pool).
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// GenerationRepository - доступ к записям генераций.
// Все переходы статуса атомарны и защищены от выхода из терминального состояния
// на уровне SQL (WHERE по текущему статусу).
type GenerationRepository interface {
	Create(ctx context.Context, g *models.Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	GetStatus(ctx context.Context, id uuid.UUID) (models.GenerationStatus, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error)
	// MarkProcessing переводит pending -> processing и проставляет started_at.
	// Возвращает false, если генерация уже не pending (конкурентная отмена).
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// UpdateStatus переводит генерацию в новый статус (только из нетерминального).
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, errorMessage *string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, chunksCompleted, progress int) error
	SetCompleted(ctx context.Context, id uuid.UUID, audioURL, audioFormat string, durationMs, sizeBytes int64, actualCost float64) error
}

// ChunkRepository - доступ к чанкам генерации.
type ChunkRepository interface {
	Create(ctx context.Context, c *models.GenerationChunk) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ChunkStatus, errorMessage *string, retryCount int) error
	SetCompleted(ctx context.Context, id uuid.UUID, audioURL string, durationMs, sizeBytes int64, cost float64, retryCount int) error
	ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]models.GenerationChunk, error)
}

// CreditRepository - леджер списаний кредитов.
type CreditRepository interface {
	// TryDeductCredits атомарно добавляет запись в леджер и уменьшает баланс.
	// Возвращает applied=false, если запись с таким idempotencyKey уже есть
	// (дубликат - не ошибка).
	TryDeductCredits(ctx context.Context, userID uint64, credits int64, idempotencyKey string, generationID uuid.UUID) (bool, error)
	GetBalance(ctx context.Context, userID uint64) (int64, error)
}

// VoiceRepository - каталог голосов.
type VoiceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Voice, error)
	ListActive(ctx context.Context) ([]models.Voice, error)
}

// UserRepository - пользователи.
type UserRepository interface {
	GetByID(ctx context.Context, id uint64) (*models.User, error)
}

// FeedbackRepository - отзывы о генерациях.
type FeedbackRepository interface {
	// Upsert вставляет или перезаписывает отзыв по ключу (generationID, userID).
	Upsert(ctx context.Context, fb *models.GenerationFeedback) error
}
