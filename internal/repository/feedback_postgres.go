package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tts-server/internal/models"
)

// Compile-time check
var _ FeedbackRepository = (*pgFeedbackRepository)(nil)

type pgFeedbackRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgFeedbackRepository создает репозиторий отзывов.
func NewPgFeedbackRepository(db DBTX, logger *zap.Logger) FeedbackRepository {
	return &pgFeedbackRepository{
		db:     db,
		logger: logger.Named("PgFeedbackRepo"),
	}
}

// Upsert: последний отзыв по ключу (generation_id, user_id) выигрывает.
func (r *pgFeedbackRepository) Upsert(ctx context.Context, fb *models.GenerationFeedback) error {
	query := `
        INSERT INTO generation_feedback
            (id, generation_id, user_id, rating, comment, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (generation_id, user_id) DO UPDATE SET
            rating = EXCLUDED.rating,
            comment = EXCLUDED.comment,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.db.Exec(ctx, query,
		fb.ID,
		fb.GenerationID,
		fb.UserID,
		fb.Rating,
		fb.Comment,
		fb.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert feedback",
			zap.String("generationID", fb.GenerationID.String()),
			zap.Uint64("userID", fb.UserID),
			zap.Error(err))
		return fmt.Errorf("ошибка сохранения отзыва для генерации '%s': %w", fb.GenerationID, err)
	}
	return nil
}
