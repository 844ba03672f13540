package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

// Compile-time check
var _ GenerationRepository = (*pgGenerationRepository)(nil)

type pgGenerationRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgGenerationRepository создает репозиторий генераций поверх PostgreSQL.
func NewPgGenerationRepository(db DBTX, logger *zap.Logger) GenerationRepository {
	return &pgGenerationRepository{
		db:     db,
		logger: logger.Named("PgGenerationRepo"),
	}
}

const generationColumns = `
    id, user_id, voice_id, input_text, character_count, status,
    routing_preference, selected_provider, audio_url, audio_format,
    duration_ms, size_bytes, estimated_cost, actual_cost,
    chunk_count, chunks_completed, progress, error_message, retry_count,
    created_at, started_at, completed_at`

func (r *pgGenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	query := `
        INSERT INTO generations
            (id, user_id, voice_id, input_text, character_count, status,
             routing_preference, selected_provider, estimated_cost,
             chunk_count, chunks_completed, progress, retry_count, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	r.logger.Debug("Creating generation",
		zap.String("generationID", g.ID.String()),
		zap.Uint64("userID", g.UserID))

	_, err := r.db.Exec(ctx, query,
		g.ID,
		g.UserID,
		g.VoiceID,
		g.InputText,
		g.CharacterCount,
		g.Status,
		g.RoutingPreference,
		g.SelectedProvider,
		g.EstimatedCost,
		g.ChunkCount,
		g.ChunksCompleted,
		g.Progress,
		g.RetryCount,
		g.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create generation", zap.String("generationID", g.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка создания генерации '%s': %w", g.ID, err)
	}
	return nil
}

func (r *pgGenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := `SELECT` + generationColumns + ` FROM generations WHERE id = $1`

	g, err := scanGeneration(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrGenerationNotFound
		}
		r.logger.Error("Failed to get generation", zap.String("generationID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения генерации '%s': %w", id, err)
	}
	return g, nil
}

func (r *pgGenerationRepository) GetStatus(ctx context.Context, id uuid.UUID) (models.GenerationStatus, error) {
	var status models.GenerationStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM generations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrGenerationNotFound
		}
		return "", fmt.Errorf("ошибка получения статуса генерации '%s': %w", id, err)
	}
	return status, nil
}

func (r *pgGenerationRepository) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT` + generationColumns + `
        FROM generations
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list generations", zap.Uint64("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка генераций: %w", err)
	}
	defer rows.Close()

	var out []models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки генерации: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// MarkProcessing: атомарный переход pending -> processing.
// Если генерация уже не pending (отменена/обработана), строка не меняется.
func (r *pgGenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        UPDATE generations
        SET status = $2, started_at = $3
        WHERE id = $1 AND status = $4
    `
	tag, err := r.db.Exec(ctx, query, id, models.GenerationStatusProcessing, time.Now().UTC(), models.GenerationStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark generation processing", zap.String("generationID", id.String()), zap.Error(err))
		return false, fmt.Errorf("ошибка перевода генерации '%s' в processing: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus переводит генерацию в новый статус. Терминальные состояния
// защищены на уровне SQL: из completed/failed/cancelled выхода нет.
func (r *pgGenerationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, errorMessage *string) error {
	query := `
        UPDATE generations
        SET status = $2,
            error_message = $3,
            completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
        WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
    `
	tag, err := r.db.Exec(ctx, query, id, status, errorMessage)
	if err != nil {
		r.logger.Error("Failed to update generation status",
			zap.String("generationID", id.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса генерации '%s': %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Generation status not updated (already terminal or missing)",
			zap.String("generationID", id.String()),
			zap.String("status", string(status)))
	}
	return nil
}

func (r *pgGenerationRepository) UpdateProgress(ctx context.Context, id uuid.UUID, chunksCompleted, progress int) error {
	query := `
        UPDATE generations
        SET chunks_completed = $2, progress = $3
        WHERE id = $1 AND status = 'processing'
    `
	_, err := r.db.Exec(ctx, query, id, chunksCompleted, progress)
	if err != nil {
		r.logger.Error("Failed to update generation progress",
			zap.String("generationID", id.String()),
			zap.Int("progress", progress),
			zap.Error(err))
		return fmt.Errorf("ошибка обновления прогресса генерации '%s': %w", id, err)
	}
	return nil
}

func (r *pgGenerationRepository) SetCompleted(ctx context.Context, id uuid.UUID, audioURL, audioFormat string, durationMs, sizeBytes int64, actualCost float64) error {
	query := `
        UPDATE generations
        SET status = 'completed',
            audio_url = $2,
            audio_format = $3,
            duration_ms = $4,
            size_bytes = $5,
            actual_cost = $6,
            progress = 100,
            chunks_completed = chunk_count,
            completed_at = NOW()
        WHERE id = $1 AND status = 'processing'
    `
	tag, err := r.db.Exec(ctx, query, id, audioURL, audioFormat, durationMs, sizeBytes, actualCost)
	if err != nil {
		r.logger.Error("Failed to set generation completed", zap.String("generationID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка завершения генерации '%s': %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Generation not completed (not in processing state)", zap.String("generationID", id.String()))
	}
	return nil
}

// scanGeneration читает строку генерации (общая часть GetByID и ListByUser).
func scanGeneration(row pgx.Row) (*models.Generation, error) {
	var g models.Generation
	err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.VoiceID,
		&g.InputText,
		&g.CharacterCount,
		&g.Status,
		&g.RoutingPreference,
		&g.SelectedProvider,
		&g.AudioURL,
		&g.AudioFormat,
		&g.DurationMs,
		&g.SizeBytes,
		&g.EstimatedCost,
		&g.ActualCost,
		&g.ChunkCount,
		&g.ChunksCompleted,
		&g.Progress,
		&g.ErrorMessage,
		&g.RetryCount,
		&g.CreatedAt,
		&g.StartedAt,
		&g.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
