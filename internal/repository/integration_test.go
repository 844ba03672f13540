//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tts-server/internal/database"
	"tts-server/internal/models"
	"tts-server/internal/repository"
)

// Интеграционные тесты гоняются против реальной БД:
//
//	TEST_DATABASE_DSN=postgres://... go test -tags=integration ./internal/repository/
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set, skipping integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, database.ApplyMigrations(pool))

	t.Cleanup(pool.Close)
	return pool
}

func createTestUser(t *testing.T, pool *pgxpool.Pool, balance int64) uint64 {
	t.Helper()
	var id uint64
	email := fmt.Sprintf("it-%s@example.com", uuid.NewString())
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, credit_balance) VALUES ($1, $2) RETURNING id`,
		email, balance).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestVoice(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO voices (id, name, provider, provider_voice_id, language, is_active)
         VALUES ($1, $2, 'openai', 'alloy', 'en', TRUE)`,
		id, "it-voice-"+id.String()[:8])
	require.NoError(t, err)
	return id
}

func createTestGeneration(t *testing.T, repo repository.GenerationRepository, userID uint64, voiceID uuid.UUID) uuid.UUID {
	t.Helper()
	gen := &models.Generation{
		ID:                uuid.New(),
		UserID:            userID,
		VoiceID:           voiceID,
		InputText:         "One. Two. Three.",
		CharacterCount:    16,
		Status:            models.GenerationStatusPending,
		RoutingPreference: models.RoutingPreferenceBalanced,
		SelectedProvider:  "openai",
		EstimatedCost:     0.015,
		ChunkCount:        3,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), gen))
	return gen.ID
}

func TestIntegration_GenerationLifecycle(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := repository.NewPgGenerationRepository(pool, zap.NewNop())

	userID := createTestUser(t, pool, 100)
	voiceID := createTestVoice(t, pool)
	genID := createTestGeneration(t, repo, userID, voiceID)

	// Захват pending -> processing срабатывает ровно один раз
	ok, err := repo.MarkProcessing(ctx, genID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkProcessing(ctx, genID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.UpdateProgress(ctx, genID, 1, 33))
	gen, err := repo.GetByID(ctx, genID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusProcessing, gen.Status)
	assert.Equal(t, 33, gen.Progress)

	require.NoError(t, repo.SetCompleted(ctx, genID, "http://audio/full.wav", "wav", 3000, 9, 0.060))

	// Терминальный статус защищен на уровне SQL
	msg := "late failure"
	require.NoError(t, repo.UpdateStatus(ctx, genID, models.GenerationStatusFailed, &msg))

	gen, err = repo.GetByID(ctx, genID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusCompleted, gen.Status)
	assert.Equal(t, 100, gen.Progress)
	require.NotNil(t, gen.ActualCost)
	assert.InDelta(t, 0.060, *gen.ActualCost, 1e-9)
}

func TestIntegration_CancelBeatsProcessing(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := repository.NewPgGenerationRepository(pool, zap.NewNop())

	userID := createTestUser(t, pool, 100)
	voiceID := createTestVoice(t, pool)
	genID := createTestGeneration(t, repo, userID, voiceID)

	require.NoError(t, repo.UpdateStatus(ctx, genID, models.GenerationStatusCancelled, nil))

	// Воркер, опоздавший к отмене, проигрывает гонку за строку
	ok, err := repo.MarkProcessing(ctx, genID)
	require.NoError(t, err)
	assert.False(t, ok)

	status, err := repo.GetStatus(ctx, genID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusCancelled, status)
}

func TestIntegration_CreditDeductionIdempotency(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := repository.NewPgCreditRepository(pool, pool, zap.NewNop())

	userID := createTestUser(t, pool, 10)
	genID := uuid.New()
	key := genID.String()

	applied, err := repo.TryDeductCredits(ctx, userID, 6, key, genID)
	require.NoError(t, err)
	assert.True(t, applied)

	// Повтор с тем же ключом ловится unique-констрейнтом, баланс не трогается
	applied, err = repo.TryDeductCredits(ctx, userID, 6, key, genID)
	require.NoError(t, err)
	assert.False(t, applied)

	balance, err := repo.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
}
