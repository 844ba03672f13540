package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

// Compile-time check
var _ VoiceRepository = (*pgVoiceRepository)(nil)

type pgVoiceRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgVoiceRepository создает репозиторий каталога голосов.
func NewPgVoiceRepository(db DBTX, logger *zap.Logger) VoiceRepository {
	return &pgVoiceRepository{
		db:     db,
		logger: logger.Named("PgVoiceRepo"),
	}
}

const voiceColumns = `id, name, provider, provider_voice_id, language, preview_url, is_active, created_at`

func (r *pgVoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Voice, error) {
	query := `SELECT ` + voiceColumns + ` FROM voices WHERE id = $1`

	var v models.Voice
	err := r.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Provider, &v.ProviderVoiceID,
		&v.Language, &v.PreviewURL, &v.IsActive, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVoiceNotFound
		}
		r.logger.Error("Failed to get voice", zap.String("voiceID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения голоса '%s': %w", id, err)
	}
	return &v, nil
}

func (r *pgVoiceRepository) ListActive(ctx context.Context) ([]models.Voice, error) {
	query := `SELECT ` + voiceColumns + ` FROM voices WHERE is_active = TRUE ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list voices", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения каталога голосов: %w", err)
	}
	defer rows.Close()

	var out []models.Voice
	for rows.Next() {
		var v models.Voice
		err := rows.Scan(
			&v.ID, &v.Name, &v.Provider, &v.ProviderVoiceID,
			&v.Language, &v.PreviewURL, &v.IsActive, &v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки голоса: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
