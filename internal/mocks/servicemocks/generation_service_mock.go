package servicemocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"tts-server/internal/models"
	"tts-server/internal/service"
)

// Mock GenerationService
type GenerationService struct {
	mock.Mock
}

func (m *GenerationService) EstimateCost(ctx context.Context, userID uint64, req service.EstimateRequest) (*service.EstimateResult, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*service.EstimateResult)
	return res, args.Error(1)
}
func (m *GenerationService) CreateGeneration(ctx context.Context, userID uint64, req service.CreateRequest) (*service.CreateResult, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*service.CreateResult)
	return res, args.Error(1)
}
func (m *GenerationService) CancelGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (bool, error) {
	args := m.Called(ctx, generationID, userID)
	return args.Bool(0), args.Error(1)
}
func (m *GenerationService) SubmitFeedback(ctx context.Context, generationID uuid.UUID, userID uint64, rating int, comment string) error {
	args := m.Called(ctx, generationID, userID, rating, comment)
	return args.Error(0)
}
func (m *GenerationService) GetGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (*models.Generation, error) {
	args := m.Called(ctx, generationID, userID)
	gen, _ := args.Get(0).(*models.Generation)
	return gen, args.Error(1)
}
func (m *GenerationService) ListGenerations(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error) {
	args := m.Called(ctx, userID, limit, offset)
	items, _ := args.Get(0).([]models.Generation)
	return items, args.Error(1)
}
func (m *GenerationService) ListChunks(ctx context.Context, generationID uuid.UUID, userID uint64) ([]models.GenerationChunk, error) {
	args := m.Called(ctx, generationID, userID)
	items, _ := args.Get(0).([]models.GenerationChunk)
	return items, args.Error(1)
}
func (m *GenerationService) ListVoices(ctx context.Context) ([]models.Voice, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]models.Voice)
	return items, args.Error(1)
}
func (m *GenerationService) GetAccount(ctx context.Context, userID uint64) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}
