package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tts-server/internal/chunking"
	"tts-server/internal/messaging"
	"tts-server/internal/models"
	"tts-server/internal/pricing"
	"tts-server/internal/repository"
	"tts-server/internal/routing"
)

// PriceCalculator - контракт ценового коллаборатора.
type PriceCalculator interface {
	CalculateAllProviderEstimates(pctx pricing.Context) []pricing.ProviderEstimate
	CalculateEstimate(pctx pricing.Context, provider string) (pricing.ProviderEstimate, error)
}

// ProviderRouter - контракт маршрутизации провайдеров.
type ProviderRouter interface {
	SelectProvider(ctx context.Context, rctx routing.Context) (routing.Selection, error)
}

// EstimateRequest - запрос оценки стоимости.
type EstimateRequest struct {
	Text       string
	Preference models.RoutingPreference
}

// EstimateResult - результат оценки стоимости.
// Estimates идут в том порядке, в котором их вернул ценовой коллаборатор;
// Best - первая запись списка (НЕ обязательно самая дешевая).
type EstimateResult struct {
	CharacterCount      int                        `json:"characterCount"`
	ChunkCount          int                        `json:"chunkCount"`
	Estimates           []pricing.ProviderEstimate `json:"estimates"`
	Best                pricing.ProviderEstimate   `json:"best"`
	RecommendedProvider string                     `json:"recommendedProvider,omitempty"`
	RoutingRationale    string                     `json:"routingRationale,omitempty"`
}

// CreateRequest - запрос создания генерации.
type CreateRequest struct {
	Text         string
	VoiceID      uuid.UUID
	Preference   models.RoutingPreference
	OutputFormat string
}

// CreateResult - сводка по созданной генерации.
type CreateResult struct {
	ID               uuid.UUID               `json:"id"`
	Status           models.GenerationStatus `json:"status"`
	CharacterCount   int                     `json:"characterCount"`
	ChunkCount       int                     `json:"chunkCount"`
	EstimatedCost    float64                 `json:"estimatedCost"`
	EstimatedCredits int64                   `json:"estimatedCredits"`
	Provider         string                  `json:"provider"`
}

// GenerationService определяет интерфейс оркестратора генераций.
type GenerationService interface {
	EstimateCost(ctx context.Context, userID uint64, req EstimateRequest) (*EstimateResult, error)
	CreateGeneration(ctx context.Context, userID uint64, req CreateRequest) (*CreateResult, error)
	CancelGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (bool, error)
	SubmitFeedback(ctx context.Context, generationID uuid.UUID, userID uint64, rating int, comment string) error
	GetGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (*models.Generation, error)
	ListGenerations(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error)
	ListChunks(ctx context.Context, generationID uuid.UUID, userID uint64) ([]models.GenerationChunk, error)
	ListVoices(ctx context.Context) ([]models.Voice, error)
	GetAccount(ctx context.Context, userID uint64) (*models.User, error)
}

type generationServiceImpl struct {
	generations repository.GenerationRepository
	chunks      repository.ChunkRepository
	voices      repository.VoiceRepository
	credits     repository.CreditRepository
	users       repository.UserRepository
	feedback    repository.FeedbackRepository
	publisher   messaging.TaskPublisher
	calc        PriceCalculator
	router      ProviderRouter
	chunkOpts   chunking.Options
	maxChars    int
	logger      *zap.Logger
}

// NewGenerationService создает оркестратор генераций.
func NewGenerationService(
	generations repository.GenerationRepository,
	chunks repository.ChunkRepository,
	voices repository.VoiceRepository,
	credits repository.CreditRepository,
	users repository.UserRepository,
	feedback repository.FeedbackRepository,
	publisher messaging.TaskPublisher,
	calc PriceCalculator,
	router ProviderRouter,
	chunkOpts chunking.Options,
	maxInputChars int,
	logger *zap.Logger,
) GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &generationServiceImpl{
		generations: generations,
		chunks:      chunks,
		voices:      voices,
		credits:     credits,
		users:       users,
		feedback:    feedback,
		publisher:   publisher,
		calc:        calc,
		router:      router,
		chunkOpts:   chunkOpts,
		maxChars:    maxInputChars,
		logger:      logger.Named("GenerationService"),
	}
}

// EstimateCost считает оценку стоимости по всем провайдерам.
// Ошибка маршрутизации НЕ валит весь вызов: рекомендация просто отсутствует.
func (s *generationServiceImpl) EstimateCost(ctx context.Context, userID uint64, req EstimateRequest) (*EstimateResult, error) {
	if err := s.validateText(req.Text); err != nil {
		return nil, err
	}

	charCount := len([]rune(req.Text))
	// Тот же сплиттер, что и при исполнении - оценка и исполнение обязаны совпадать
	chunkCount := chunking.EstimateChunkCount(req.Text, s.chunkOpts)

	pctx := pricing.Context{
		CharacterCount: charCount,
		ChunkCount:     chunkCount,
		Preference:     req.Preference,
	}
	estimates := s.calc.CalculateAllProviderEstimates(pctx)
	if len(estimates) == 0 {
		return nil, fmt.Errorf("ценовой калькулятор не вернул ни одной оценки: %w", models.ErrInternalServer)
	}

	result := &EstimateResult{
		CharacterCount: charCount,
		ChunkCount:     chunkCount,
		Estimates:      estimates,
		// Порядок списка - как вернул калькулятор; первая запись и есть "лучшая"
		Best: estimates[0],
	}

	sel, err := s.router.SelectProvider(ctx, routing.Context{
		CharacterCount: charCount,
		Preference:     req.Preference,
	})
	if err != nil {
		// Деградируем мягко: рекомендация недоступна, оценка остается валидной
		s.logger.Warn("Routing failed during estimate, recommendation omitted",
			zap.Uint64("userID", userID),
			zap.Error(err))
	} else {
		result.RecommendedProvider = sel.Provider
		result.RoutingRationale = sel.Rationale
	}

	return result, nil
}

// CreateGeneration валидирует запрос, создает запись в pending и публикует
// РОВНО ОДНУ задачу синтеза. Побочные эффекты: одна строка, одна задача.
func (s *generationServiceImpl) CreateGeneration(ctx context.Context, userID uint64, req CreateRequest) (*CreateResult, error) {
	log := s.logger.With(zap.Uint64("userID", userID), zap.String("voiceID", req.VoiceID.String()))

	if err := s.validateText(req.Text); err != nil {
		return nil, err
	}

	voice, err := s.voices.GetByID(ctx, req.VoiceID)
	if err != nil {
		if errors.Is(err, models.ErrVoiceNotFound) {
			return nil, models.ErrVoiceNotFound
		}
		log.Error("Ошибка получения голоса", zap.Error(err))
		return nil, fmt.Errorf("ошибка проверки голоса: %w", err)
	}
	if !voice.IsActive {
		return nil, models.ErrVoiceNotFound
	}

	charCount := len([]rune(req.Text))
	chunks := chunking.SplitText(req.Text, s.chunkOpts)
	if len(chunks) == 0 {
		return nil, models.ErrInvalidInput
	}

	sel, err := s.router.SelectProvider(ctx, routing.Context{
		CharacterCount: charCount,
		Preference:     req.Preference,
		VoiceProvider:  voice.Provider,
	})
	if err != nil {
		log.Error("Ошибка выбора провайдера", zap.Error(err))
		return nil, fmt.Errorf("ошибка выбора провайдера: %w", err)
	}

	est, err := s.calc.CalculateEstimate(pricing.Context{
		CharacterCount: charCount,
		ChunkCount:     len(chunks),
		Preference:     req.Preference,
	}, sel.Provider)
	if err != nil {
		log.Error("Ошибка расчета стоимости", zap.String("provider", sel.Provider), zap.Error(err))
		return nil, fmt.Errorf("ошибка расчета стоимости: %w", err)
	}

	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrUserNotFound
		}
		log.Error("Ошибка получения баланса", zap.Error(err))
		return nil, fmt.Errorf("ошибка проверки баланса: %w", err)
	}
	if balance < est.Credits {
		log.Info("Недостаточно кредитов для генерации",
			zap.Int64("balance", balance),
			zap.Int64("required", est.Credits))
		return nil, models.ErrInsufficientCredits
	}

	pref := req.Preference
	if !pref.Valid() {
		pref = models.RoutingPreferenceBalanced
	}

	gen := &models.Generation{
		ID:                uuid.New(),
		UserID:            userID,
		VoiceID:           voice.ID,
		InputText:         req.Text,
		CharacterCount:    charCount,
		Status:            models.GenerationStatusPending,
		RoutingPreference: pref,
		SelectedProvider:  sel.Provider,
		EstimatedCost:     est.Cost,
		ChunkCount:        len(chunks),
		ChunksCompleted:   0,
		Progress:          0,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.generations.Create(ctx, gen); err != nil {
		return nil, fmt.Errorf("ошибка сохранения генерации: %w", err)
	}

	payload := messaging.SynthesisTaskPayload{
		TaskID:       gen.ID.String(),
		GenerationID: gen.ID,
		UserID:       userID,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishSynthesisTask(ctx, payload); err != nil {
		// Задача не встала в очередь - генерацию нельзя оставлять висеть в pending
		log.Error("Ошибка публикации задачи синтеза, генерация помечается failed",
			zap.String("generationID", gen.ID.String()),
			zap.Error(err))
		msg := "failed to enqueue synthesis task"
		if updErr := s.generations.UpdateStatus(ctx, gen.ID, models.GenerationStatusFailed, &msg); updErr != nil {
			log.Error("Не удалось пометить генерацию failed после ошибки публикации", zap.Error(updErr))
		}
		return nil, fmt.Errorf("ошибка постановки задачи в очередь: %w", err)
	}

	log.Info("Генерация создана и поставлена в очередь",
		zap.String("generationID", gen.ID.String()),
		zap.String("provider", sel.Provider),
		zap.Int("chunkCount", len(chunks)))

	return &CreateResult{
		ID:               gen.ID,
		Status:           gen.Status,
		CharacterCount:   charCount,
		ChunkCount:       len(chunks),
		EstimatedCost:    est.Cost,
		EstimatedCredits: est.Credits,
		Provider:         sel.Provider,
	}, nil
}

// CancelGeneration переводит генерацию в cancelled.
// Возвращает false без ошибки, если генерации нет или она уже терминальна.
func (s *generationServiceImpl) CancelGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (bool, error) {
	gen, err := s.generations.GetByID(ctx, generationID)
	if err != nil {
		if errors.Is(err, models.ErrGenerationNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка получения генерации: %w", err)
	}
	if gen.UserID != userID {
		return false, models.ErrNotOwner
	}
	if gen.Status.IsTerminal() {
		// Уже завершена/отменена - no-op, не ошибка
		return false, nil
	}

	if err := s.generations.UpdateStatus(ctx, generationID, models.GenerationStatusCancelled, nil); err != nil {
		return false, fmt.Errorf("ошибка отмены генерации: %w", err)
	}
	s.logger.Info("Генерация отменена",
		zap.String("generationID", generationID.String()),
		zap.Uint64("userID", userID))
	return true, nil
}

// SubmitFeedback сохраняет отзыв. Последняя запись по (generationID, userID) выигрывает.
func (s *generationServiceImpl) SubmitFeedback(ctx context.Context, generationID uuid.UUID, userID uint64, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", models.ErrInvalidInput)
	}

	gen, err := s.generations.GetByID(ctx, generationID)
	if err != nil {
		return err
	}
	if gen.UserID != userID {
		return models.ErrNotOwner
	}

	fb := &models.GenerationFeedback{
		ID:           uuid.New(),
		GenerationID: generationID,
		UserID:       userID,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    time.Now().UTC(),
	}
	return s.feedback.Upsert(ctx, fb)
}

func (s *generationServiceImpl) GetGeneration(ctx context.Context, generationID uuid.UUID, userID uint64) (*models.Generation, error) {
	gen, err := s.generations.GetByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, models.ErrNotOwner
	}
	return gen, nil
}

func (s *generationServiceImpl) ListGenerations(ctx context.Context, userID uint64, limit, offset int) ([]models.Generation, error) {
	return s.generations.ListByUser(ctx, userID, limit, offset)
}

// ListChunks возвращает чанки генерации в порядке индексов.
func (s *generationServiceImpl) ListChunks(ctx context.Context, generationID uuid.UUID, userID uint64) ([]models.GenerationChunk, error) {
	gen, err := s.generations.GetByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, models.ErrNotOwner
	}
	return s.chunks.ListByGeneration(ctx, generationID)
}

func (s *generationServiceImpl) ListVoices(ctx context.Context) ([]models.Voice, error) {
	return s.voices.ListActive(ctx)
}

// GetAccount возвращает профиль пользователя с текущим балансом кредитов.
func (s *generationServiceImpl) GetAccount(ctx context.Context, userID uint64) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *generationServiceImpl) validateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: text is empty", models.ErrInvalidInput)
	}
	if s.maxChars > 0 && len([]rune(text)) > s.maxChars {
		return fmt.Errorf("%w: text exceeds %d characters", models.ErrInvalidInput, s.maxChars)
	}
	return nil
}
