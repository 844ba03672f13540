package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

const (
	voiceCacheKeyPrefix  = "voice:"
	voiceListCacheKey    = "voices:active"
	defaultVoiceCacheTTL = 10 * time.Minute
)

// Compile-time check
var _ VoiceRepository = (*cachedVoiceRepository)(nil)

// cachedVoiceRepository - read-through кэш каталога голосов поверх Redis.
// Каталог меняется редко, поэтому инвалидация по TTL достаточна.
type cachedVoiceRepository struct {
	inner  VoiceRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedVoiceRepository оборачивает репозиторий голосов кэшем в Redis.
func NewCachedVoiceRepository(inner VoiceRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) VoiceRepository {
	if ttl <= 0 {
		ttl = defaultVoiceCacheTTL
	}
	return &cachedVoiceRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("VoiceCache"),
	}
}

func (r *cachedVoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Voice, error) {
	key := voiceCacheKeyPrefix + id.String()

	cached, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var v models.Voice
		if jsonErr := json.Unmarshal(cached, &v); jsonErr == nil {
			return &v, nil
		}
		// Битая запись в кэше - игнорируем и идем в БД
		r.logger.Warn("Failed to unmarshal cached voice, falling back to DB", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		// Redis недоступен - каталог продолжает работать через БД
		r.logger.Warn("Voice cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(v); jsonErr == nil {
		if setErr := r.client.Set(ctx, key, data, r.ttl).Err(); setErr != nil {
			r.logger.Warn("Voice cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	return v, nil
}

func (r *cachedVoiceRepository) ListActive(ctx context.Context) ([]models.Voice, error) {
	cached, err := r.client.Get(ctx, voiceListCacheKey).Bytes()
	if err == nil {
		var voices []models.Voice
		if jsonErr := json.Unmarshal(cached, &voices); jsonErr == nil {
			return voices, nil
		}
		r.logger.Warn("Failed to unmarshal cached voice list, falling back to DB")
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("Voice list cache read failed", zap.Error(err))
	}

	voices, err := r.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(voices); jsonErr == nil {
		if setErr := r.client.Set(ctx, voiceListCacheKey, data, r.ttl).Err(); setErr != nil {
			r.logger.Warn("Voice list cache write failed", zap.Error(setErr))
		}
	} else {
		return nil, fmt.Errorf("ошибка сериализации каталога голосов: %w", jsonErr)
	}
	return voices, nil
}
