package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

// Compile-time check
var _ ChunkRepository = (*pgChunkRepository)(nil)

type pgChunkRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgChunkRepository создает репозиторий чанков поверх PostgreSQL.
func NewPgChunkRepository(db DBTX, logger *zap.Logger) ChunkRepository {
	return &pgChunkRepository{
		db:     db,
		logger: logger.Named("PgChunkRepo"),
	}
}

func (r *pgChunkRepository) Create(ctx context.Context, c *models.GenerationChunk) error {
	query := `
        INSERT INTO generation_chunks
            (id, generation_id, chunk_index, text, character_count, status,
             provider, retry_count, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
    `
	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.GenerationID,
		c.Index,
		c.Text,
		c.CharacterCount,
		c.Status,
		c.Provider,
		c.RetryCount,
		c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create chunk",
			zap.String("chunkID", c.ID.String()),
			zap.String("generationID", c.GenerationID.String()),
			zap.Int("index", c.Index),
			zap.Error(err))
		return fmt.Errorf("ошибка создания чанка %d генерации '%s': %w", c.Index, c.GenerationID, err)
	}
	return nil
}

func (r *pgChunkRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ChunkStatus, errorMessage *string, retryCount int) error {
	query := `
        UPDATE generation_chunks
        SET status = $2, error_message = $3, retry_count = $4, updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id, status, errorMessage, retryCount)
	if err != nil {
		r.logger.Error("Failed to update chunk status",
			zap.String("chunkID", id.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса чанка '%s': %w", id, err)
	}
	return nil
}

func (r *pgChunkRepository) SetCompleted(ctx context.Context, id uuid.UUID, audioURL string, durationMs, sizeBytes int64, cost float64, retryCount int) error {
	query := `
        UPDATE generation_chunks
        SET status = 'completed',
            audio_url = $2,
            duration_ms = $3,
            size_bytes = $4,
            cost = $5,
            retry_count = $6,
            error_message = NULL,
            updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id, audioURL, durationMs, sizeBytes, cost, retryCount)
	if err != nil {
		r.logger.Error("Failed to set chunk completed", zap.String("chunkID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка завершения чанка '%s': %w", id, err)
	}
	return nil
}

func (r *pgChunkRepository) ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]models.GenerationChunk, error) {
	query := `
        SELECT id, generation_id, chunk_index, text, character_count, status,
               provider, audio_url, duration_ms, size_bytes, cost,
               error_message, retry_count, created_at, updated_at
        FROM generation_chunks
        WHERE generation_id = $1
        ORDER BY chunk_index ASC
    `
	rows, err := r.db.Query(ctx, query, generationID)
	if err != nil {
		r.logger.Error("Failed to list chunks", zap.String("generationID", generationID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения чанков генерации '%s': %w", generationID, err)
	}
	defer rows.Close()

	var out []models.GenerationChunk
	for rows.Next() {
		var c models.GenerationChunk
		err := rows.Scan(
			&c.ID,
			&c.GenerationID,
			&c.Index,
			&c.Text,
			&c.CharacterCount,
			&c.Status,
			&c.Provider,
			&c.AudioURL,
			&c.DurationMs,
			&c.SizeBytes,
			&c.Cost,
			&c.ErrorMessage,
			&c.RetryCount,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки чанка: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
