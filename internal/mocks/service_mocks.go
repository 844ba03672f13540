package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tts-server/internal/messaging"
	"tts-server/internal/pricing"
	"tts-server/internal/provider"
	"tts-server/internal/routing"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishSynthesisTask(ctx context.Context, payload messaging.SynthesisTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock SpeechProvider
type SpeechProvider struct {
	mock.Mock
	ProviderName string
}

func (m *SpeechProvider) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}
func (m *SpeechProvider) GenerateSpeech(ctx context.Context, req provider.SpeechRequest) (*provider.SpeechResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*provider.SpeechResult)
	return res, args.Error(1)
}

// Mock Storage
type Storage struct {
	mock.Mock
}

func (m *Storage) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	args := m.Called(ctx, data, path, contentType)
	return args.String(0), args.Error(1)
}

// Mock PriceCalculator
type PriceCalculator struct {
	mock.Mock
}

func (m *PriceCalculator) CalculateAllProviderEstimates(pctx pricing.Context) []pricing.ProviderEstimate {
	args := m.Called(pctx)
	items, _ := args.Get(0).([]pricing.ProviderEstimate)
	return items
}
func (m *PriceCalculator) CalculateEstimate(pctx pricing.Context, providerName string) (pricing.ProviderEstimate, error) {
	args := m.Called(pctx, providerName)
	est, _ := args.Get(0).(pricing.ProviderEstimate)
	return est, args.Error(1)
}

// Mock ProviderRouter
type ProviderRouter struct {
	mock.Mock
}

func (m *ProviderRouter) SelectProvider(ctx context.Context, rctx routing.Context) (routing.Selection, error) {
	args := m.Called(ctx, rctx)
	sel, _ := args.Get(0).(routing.Selection)
	return sel, args.Error(1)
}
