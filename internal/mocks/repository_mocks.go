package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"tts-server/internal/models"
)

// Mock GenerationRepository
type GenerationRepository struct {
	mock.Mock
}

func (m *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}
func (m *GenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	args := m.Called(ctx, id)
	gen, _ := args.Get(0).(*models.Generation)
	return gen, args.Error(1)
}
func (m *GenerationRepository) GetStatus(ctx context.Context, id uuid.UUID) (models.GenerationStatus, error) {
	args := m.Called(ctx, id)
	status, _ := args.Get(0).(models.GenerationStatus)
	return status, args.Error(1)
}
func (m *GenerationRepository) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error) {
	args := m.Called(ctx, userID, limit, offset)
	items, _ := args.Get(0).([]models.Generation)
	return items, args.Error(1)
}
func (m *GenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *GenerationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, errorMessage *string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}
func (m *GenerationRepository) UpdateProgress(ctx context.Context, id uuid.UUID, chunksCompleted, progress int) error {
	args := m.Called(ctx, id, chunksCompleted, progress)
	return args.Error(0)
}
func (m *GenerationRepository) SetCompleted(ctx context.Context, id uuid.UUID, audioURL, audioFormat string, durationMs, sizeBytes int64, actualCost float64) error {
	args := m.Called(ctx, id, audioURL, audioFormat, durationMs, sizeBytes, actualCost)
	return args.Error(0)
}

// Mock ChunkRepository
type ChunkRepository struct {
	mock.Mock
}

func (m *ChunkRepository) Create(ctx context.Context, c *models.GenerationChunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *ChunkRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ChunkStatus, errorMessage *string, retryCount int) error {
	args := m.Called(ctx, id, status, errorMessage, retryCount)
	return args.Error(0)
}
func (m *ChunkRepository) SetCompleted(ctx context.Context, id uuid.UUID, audioURL string, durationMs, sizeBytes int64, cost float64, retryCount int) error {
	args := m.Called(ctx, id, audioURL, durationMs, sizeBytes, cost, retryCount)
	return args.Error(0)
}
func (m *ChunkRepository) ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]models.GenerationChunk, error) {
	args := m.Called(ctx, generationID)
	items, _ := args.Get(0).([]models.GenerationChunk)
	return items, args.Error(1)
}

// Mock CreditRepository
type CreditRepository struct {
	mock.Mock
}

func (m *CreditRepository) TryDeductCredits(ctx context.Context, userID uint64, credits int64, idempotencyKey string, generationID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, credits, idempotencyKey, generationID)
	return args.Bool(0), args.Error(1)
}
func (m *CreditRepository) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	args := m.Called(ctx, userID)
	balance, _ := args.Get(0).(int64)
	return balance, args.Error(1)
}

// Mock VoiceRepository
type VoiceRepository struct {
	mock.Mock
}

func (m *VoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Voice, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.Voice)
	return v, args.Error(1)
}
func (m *VoiceRepository) ListActive(ctx context.Context) ([]models.Voice, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]models.Voice)
	return items, args.Error(1)
}

// Mock UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

// Mock FeedbackRepository
type FeedbackRepository struct {
	mock.Mock
}

func (m *FeedbackRepository) Upsert(ctx context.Context, fb *models.GenerationFeedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}
