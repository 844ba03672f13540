package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tts-server/internal/chunking"
	"tts-server/internal/mocks"
	"tts-server/internal/models"
	"tts-server/internal/provider"
)

// Текст с тремя предложениями, которые при лимите 6 рун дают ровно три чанка:
// "One.", "Two.", "Three.".
const testInputText = "One. Two. Three."

type handlerFixture struct {
	generations *mocks.GenerationRepository
	chunks      *mocks.ChunkRepository
	voices      *mocks.VoiceRepository
	speech      *mocks.SpeechProvider
	storage     *mocks.Storage
	credits     *mocks.CreditRepository
	handler     *TaskHandler

	generationID uuid.UUID
	voiceID      uuid.UUID
	userID       uint64
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		generations:  new(mocks.GenerationRepository),
		chunks:       new(mocks.ChunkRepository),
		voices:       new(mocks.VoiceRepository),
		speech:       &mocks.SpeechProvider{ProviderName: "openai"},
		storage:      new(mocks.Storage),
		credits:      new(mocks.CreditRepository),
		generationID: uuid.New(),
		voiceID:      uuid.New(),
		userID:       42,
	}

	retryer := newTestRetryer()
	settler := NewSettler(f.credits, newTestRetryer(), zap.NewNop())

	f.handler = NewTaskHandler(
		f.generations, f.chunks, f.voices,
		provider.NewRegistry(f.speech),
		f.storage,
		retryer, settler,
		chunking.Options{MaxChunkChars: 6},
		"mp3",
		nil,
		zap.NewNop(),
	)
	return f
}

func (f *handlerFixture) pendingGeneration() *models.Generation {
	return &models.Generation{
		ID:               f.generationID,
		UserID:           f.userID,
		VoiceID:          f.voiceID,
		InputText:        testInputText,
		CharacterCount:   len([]rune(testInputText)),
		Status:           models.GenerationStatusPending,
		SelectedProvider: "openai",
		ChunkCount:       3,
	}
}

func (f *handlerFixture) testVoice() *models.Voice {
	return &models.Voice{
		ID:              f.voiceID,
		Name:            "Alloy",
		Provider:        "openai",
		ProviderVoiceID: "alloy",
		IsActive:        true,
	}
}

func speechOK(audio string, cost float64) *provider.SpeechResult {
	return &provider.SpeechResult{
		Success:     true,
		Audio:       []byte(audio),
		ContentType: "audio/mpeg",
		DurationMs:  1000,
		Cost:        cost,
	}
}

func reqWithText(text string) interface{} {
	return mock.MatchedBy(func(req provider.SpeechRequest) bool {
		return req.Text == text
	})
}

func TestTaskHandler_HandleTask_Success(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Times(3)

	// Пример из тарифной сетки: 0.015 + 0.020 + 0.025 = 0.060 -> 6 кредитов
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(speechOK("aaa", 0.015), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Two.")).Return(speechOK("bbb", 0.020), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Three.")).Return(speechOK("ccc", 0.025), nil).Once()

	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Times(3)
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 0).
		Return(nil).Times(3)

	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("generations/%s/chunk_%04d.mp3", f.generationID, i)
		f.storage.On("Upload", mock.Anything, mock.Anything, path, "audio/mpeg").
			Return("http://audio/"+path, nil).Once()
	}

	// Прогресс строго последовательный: floor(100*k/3)
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, 1, 33).Return(nil).Once()
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, 2, 66).Return(nil).Once()
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, 3, 100).Return(nil).Once()

	finalPath := fmt.Sprintf("generations/%s/full.mp3", f.generationID)
	f.storage.On("Upload", mock.Anything, []byte("aaabbbccc"), finalPath, "audio/mpeg").
		Return("http://audio/"+finalPath, nil).Once()

	f.generations.On("SetCompleted", mock.Anything, f.generationID,
		"http://audio/"+finalPath, "mp3", int64(3000), int64(9),
		mock.MatchedBy(func(cost float64) bool { return math.Abs(cost-0.060) < 1e-9 }),
	).Return(nil).Once()

	f.credits.On("TryDeductCredits", mock.Anything, f.userID, int64(6), f.generationID.String(), f.generationID).
		Return(true, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	f.generations.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
	f.speech.AssertExpectations(t)
	f.storage.AssertExpectations(t)
	f.credits.AssertExpectations(t)
}

func TestTaskHandler_HandleTask_TerminalRedeliveryIsNoop(t *testing.T) {
	f := newHandlerFixture(t)

	gen := f.pendingGeneration()
	gen.Status = models.GenerationStatusCompleted
	f.generations.On("GetByID", mock.Anything, f.generationID).Return(gen, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	// Повторная доставка завершенной генерации: никакой обработки
	f.generations.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything)
	f.speech.AssertNotCalled(t, "GenerateSpeech", mock.Anything, mock.Anything)
	f.credits.AssertNotCalled(t, "TryDeductCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_MissingGenerationIsNoop(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).
		Return(nil, models.ErrGenerationNotFound).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)
	f.generations.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_ChunkExhaustionFailsGeneration(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Once()

	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Once()

	// Первый чанк не синтезируется: ровно 4 попытки, пятой нет
	provErr := errors.New("upstream 503")
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(nil, provErr).Times(4)

	f.chunks.On("UpdateStatus", mock.Anything, mock.Anything, models.ChunkStatusFailed, mock.Anything, 3).
		Return(nil).Once()
	f.generations.On("UpdateStatus", mock.Anything, f.generationID, models.GenerationStatusFailed,
		mock.MatchedBy(func(msg *string) bool { return msg != nil && *msg != "" })).
		Return(nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	f.speech.AssertNumberOfCalls(t, "GenerateSpeech", 4)
	// Чанки с большим индексом не начинались
	f.chunks.AssertNumberOfCalls(t, "Create", 1)
	f.generations.AssertNotCalled(t, "UpdateProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.credits.AssertNotCalled(t, "TryDeductCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_ProviderRefusalRetriedLikeError(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Times(3)
	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Times(3)

	// Отказ провайдера (Success=false) ретраится, со второй попытки успех
	refusal := &provider.SpeechResult{Success: false, ErrorMessage: "voice busy"}
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(refusal, nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(speechOK("aaa", 0.015), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Two.")).Return(speechOK("bbb", 0.020), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Three.")).Return(speechOK("ccc", 0.025), nil).Once()

	// Первый чанк завершился со счетчиком ретраев 1
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 1).
		Return(nil).Once()
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 0).
		Return(nil).Twice()

	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("http://audio/file.mp3", nil).Times(4)
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, mock.Anything, mock.Anything).
		Return(nil).Times(3)
	f.generations.On("SetCompleted", mock.Anything, f.generationID,
		mock.Anything, "mp3", int64(3000), int64(9), mock.Anything).Return(nil).Once()
	f.credits.On("TryDeductCredits", mock.Anything, f.userID, int64(6), f.generationID.String(), f.generationID).
		Return(true, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)
	f.speech.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
}

func TestTaskHandler_HandleTask_EmptyAudioRetriedLikeRefusal(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Times(3)
	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Times(3)

	// Success=true без байтов аудио не принимается и уходит на повтор
	hollow := &provider.SpeechResult{Success: true, ContentType: "audio/mpeg"}
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(hollow, nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(speechOK("aaa", 0.015), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Two.")).Return(speechOK("bbb", 0.020), nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("Three.")).Return(speechOK("ccc", 0.025), nil).Once()

	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 1).
		Return(nil).Once()
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 0).
		Return(nil).Twice()

	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("http://audio/file.mp3", nil).Times(4)
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, mock.Anything, mock.Anything).
		Return(nil).Times(3)
	f.generations.On("SetCompleted", mock.Anything, f.generationID,
		mock.Anything, "mp3", int64(3000), int64(9), mock.Anything).Return(nil).Once()
	f.credits.On("TryDeductCredits", mock.Anything, f.userID, int64(6), f.generationID.String(), f.generationID).
		Return(true, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)
	f.speech.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
}

func TestTaskHandler_HandleTask_CancelledBeforeFirstChunk(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()

	// Пользовательская отмена видна через статус в БД
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusCancelled, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	// Ни одного вызова провайдера, статус не перезаписывается
	f.speech.AssertNotCalled(t, "GenerateSpeech", mock.Anything, mock.Anything)
	f.chunks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.generations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_CancelledMidway(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()

	// Первый чанк проходит, перед вторым обнаруживается отмена
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusCancelled, nil).Once()

	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Once()
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).Return(speechOK("aaa", 0.015), nil).Once()
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, int64(1000), int64(3), mock.Anything, 0).
		Return(nil).Once()
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("http://audio/chunk.mp3", nil).Once()
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, 1, 33).Return(nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	// Второй чанк не начинался, генерация не помечается failed
	f.speech.AssertNumberOfCalls(t, "GenerateSpeech", 1)
	f.generations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, models.GenerationStatusFailed, mock.Anything)
	f.generations.AssertNotCalled(t, "SetCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.credits.AssertNotCalled(t, "TryDeductCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_ContextCancelledBeforeFirstChunk(t *testing.T) {
	f := newHandlerFixture(t)

	// Остановка воркера до первого вызова провайдера
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()

	f.generations.On("UpdateStatus", mock.Anything, f.generationID, models.GenerationStatusCancelled, (*string)(nil)).
		Return(nil).Once()

	err := f.handler.HandleTask(ctx, f.generationID)
	require.NoError(t, err)

	// Провайдер не вызывался ни разу, итог - cancelled, не failed
	f.speech.AssertNotCalled(t, "GenerateSpeech", mock.Anything, mock.Anything)
	f.chunks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.generations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, models.GenerationStatusFailed, mock.Anything)
	f.generations.AssertExpectations(t)
}

func TestTaskHandler_HandleTask_ContextCancelledMidProviderCall(t *testing.T) {
	f := newHandlerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Once()
	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Once()

	// Контекст отменяется прямо во время вызова провайдера
	f.speech.On("GenerateSpeech", mock.Anything, reqWithText("One.")).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	f.generations.On("UpdateStatus", mock.Anything, f.generationID, models.GenerationStatusCancelled, (*string)(nil)).
		Return(nil).Once()

	err := f.handler.HandleTask(ctx, f.generationID)
	require.NoError(t, err)

	// Лестница повторов оборвана отменой: одна попытка, итог cancelled,
	// чанк не помечается failed
	f.speech.AssertNumberOfCalls(t, "GenerateSpeech", 1)
	f.chunks.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.generations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, models.GenerationStatusFailed, mock.Anything)
	f.generations.AssertExpectations(t)
}

func TestTaskHandler_HandleTask_LostPendingRace(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	// Между чтением и захватом статус сменился (конкурентная отмена)
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(false, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)
	f.voices.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestTaskHandler_HandleTask_BillingFailureDoesNotFailGeneration(t *testing.T) {
	f := newHandlerFixture(t)

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil).Times(3)
	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil).Times(3)
	f.speech.On("GenerateSpeech", mock.Anything, mock.Anything).Return(speechOK("aaa", 0.02), nil).Times(3)
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Times(3)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("http://audio/file.mp3", nil).Times(4)
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, mock.Anything, mock.Anything).
		Return(nil).Times(3)
	f.generations.On("SetCompleted", mock.Anything, f.generationID,
		mock.Anything, "mp3", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	// Списание падает во всех попытках: генерация остается completed
	f.credits.On("TryDeductCredits", mock.Anything, f.userID, mock.Anything, f.generationID.String(), f.generationID).
		Return(false, errors.New("db down")).Times(4)

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	f.generations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, models.GenerationStatusFailed, mock.Anything)
	f.credits.AssertNumberOfCalls(t, "TryDeductCredits", 4)
}

func TestTaskHandler_HandleTask_DuplicateSettleCountedSeparately(t *testing.T) {
	f := newHandlerFixture(t)
	m := NewMetrics()
	f.handler.metrics = m

	f.generations.On("GetByID", mock.Anything, f.generationID).Return(f.pendingGeneration(), nil)
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil)
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil)
	f.generations.On("GetStatus", mock.Anything, f.generationID).
		Return(models.GenerationStatusProcessing, nil)
	f.chunks.On("Create", mock.Anything, mock.AnythingOfType("*models.GenerationChunk")).Return(nil)
	f.speech.On("GenerateSpeech", mock.Anything, mock.Anything).Return(speechOK("aaa", 0.02), nil)
	f.chunks.On("SetCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("http://audio/file.mp3", nil)
	f.generations.On("UpdateProgress", mock.Anything, f.generationID, mock.Anything, mock.Anything).Return(nil)
	f.generations.On("SetCompleted", mock.Anything, f.generationID,
		mock.Anything, "mp3", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Повторное списание по тому же ключу: applied=false без ошибки
	f.credits.On("TryDeductCredits", mock.Anything, f.userID, mock.Anything, f.generationID.String(), f.generationID).
		Return(false, nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BillingSettles.WithLabelValues("duplicate")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BillingSettles.WithLabelValues("applied")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BillingSettles.WithLabelValues("failed")))
}

func TestTaskHandler_HandleTask_UnknownProviderFailsGeneration(t *testing.T) {
	f := newHandlerFixture(t)

	gen := f.pendingGeneration()
	gen.SelectedProvider = "nonexistent"
	f.generations.On("GetByID", mock.Anything, f.generationID).Return(gen, nil).Once()
	f.generations.On("MarkProcessing", mock.Anything, f.generationID).Return(true, nil).Once()
	f.voices.On("GetByID", mock.Anything, f.voiceID).Return(f.testVoice(), nil).Once()
	f.generations.On("UpdateStatus", mock.Anything, f.generationID, models.GenerationStatusFailed, mock.Anything).
		Return(nil).Once()

	err := f.handler.HandleTask(context.Background(), f.generationID)
	require.NoError(t, err)
	f.generations.AssertExpectations(t)
}
