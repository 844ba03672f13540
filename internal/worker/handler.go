package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tts-server/internal/audio"
	"tts-server/internal/chunking"
	"tts-server/internal/models"
	"tts-server/internal/provider"
	"tts-server/internal/repository"
	"tts-server/internal/storage"
)

// outcome-метки для метрик задач.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeSkipped   = "skipped"
)

// TaskHandler прогоняет одну генерацию через пайплайн:
// разбиение -> последовательный синтез чанков -> склейка -> загрузка -> списание.
// Обработчик никогда не возвращает ошибку наружу для бизнес-сбоев: итог
// фиксируется в статусе генерации, сообщение подтверждается. Ошибка наружу
// означает только "сообщение не удалось даже начать обрабатывать".
type TaskHandler struct {
	generations repository.GenerationRepository
	chunks      repository.ChunkRepository
	voices      repository.VoiceRepository
	providers   *provider.Registry
	storage     storage.Storage
	retryer     *Retryer
	settler     *Settler
	chunkOpts   chunking.Options
	audioFormat string
	metrics     *Metrics
	logger      *zap.Logger

	// merge подменяется в тестах
	merge func(ordered [][]byte, opts audio.MergeOptions) (*audio.MergeResult, error)
	// poll-проверка статуса перед каждым чанком наблюдает пользовательскую отмену
	now func() time.Time
}

// NewTaskHandler создает обработчик задач синтеза.
func NewTaskHandler(
	generations repository.GenerationRepository,
	chunks repository.ChunkRepository,
	voices repository.VoiceRepository,
	providers *provider.Registry,
	store storage.Storage,
	retryer *Retryer,
	settler *Settler,
	chunkOpts chunking.Options,
	audioFormat string,
	metrics *Metrics,
	logger *zap.Logger,
) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return &TaskHandler{
		generations: generations,
		chunks:      chunks,
		voices:      voices,
		providers:   providers,
		storage:     store,
		retryer:     retryer,
		settler:     settler,
		chunkOpts:   chunkOpts,
		audioFormat: audioFormat,
		metrics:     metrics,
		logger:      logger.Named("TaskHandler"),
		merge:       audio.MergeChunks,
		now:         time.Now,
	}
}

// HandleTask обрабатывает одну задачу синтеза от начала до конца.
func (h *TaskHandler) HandleTask(ctx context.Context, generationID uuid.UUID) error {
	log := h.logger.With(zap.String("generationID", generationID.String()))
	started := h.now()

	gen, err := h.generations.GetByID(ctx, generationID)
	if err != nil {
		if errors.Is(err, models.ErrGenerationNotFound) {
			// Строки нет - задача битая, подтверждаем и забываем
			log.Warn("Задача ссылается на несуществующую генерацию, пропуск")
			h.countTask(outcomeSkipped)
			return nil
		}
		return fmt.Errorf("ошибка загрузки генерации: %w", err)
	}

	// Повторная доставка после завершения - no-op (очередь дает at-least-once)
	if gen.Status.IsTerminal() {
		log.Info("Генерация уже в терминальном статусе, повторная доставка пропущена",
			zap.String("status", string(gen.Status)))
		h.countTask(outcomeSkipped)
		return nil
	}

	ok, err := h.generations.MarkProcessing(ctx, generationID)
	if err != nil {
		return fmt.Errorf("ошибка перевода генерации в processing: %w", err)
	}
	if !ok {
		// Статус сменился между чтением и захватом: отмена или чужая обработка
		log.Warn("Генерация больше не в pending, обработка пропущена")
		h.countTask(outcomeSkipped)
		return nil
	}

	voice, err := h.voices.GetByID(ctx, gen.VoiceID)
	if err != nil {
		h.failGeneration(generationID, fmt.Sprintf("voice %s is not available: %v", gen.VoiceID, err), log)
		return nil
	}

	prov, err := h.providers.Resolve(gen.SelectedProvider)
	if err != nil {
		h.failGeneration(generationID, err.Error(), log)
		return nil
	}

	textChunks := chunking.SplitText(gen.InputText, h.chunkOpts)
	if len(textChunks) == 0 {
		h.failGeneration(generationID, "input text produced no chunks", log)
		return nil
	}
	if len(textChunks) != gen.ChunkCount {
		// Сплиттер детерминирован, расхождение возможно только при смене конфига
		log.Warn("Число чанков не совпало с оценкой",
			zap.Int("estimated", gen.ChunkCount),
			zap.Int("actual", len(textChunks)))
	}

	var (
		audioBuffers [][]byte
		durationsMs  []int64
		totalCost    float64
	)

	for _, tc := range textChunks {
		if ctx.Err() != nil {
			h.cancelGeneration(generationID, log)
			return nil
		}
		// Пользовательская отмена видна только через БД
		status, stErr := h.generations.GetStatus(ctx, generationID)
		if stErr != nil {
			log.Warn("Не удалось проверить статус перед чанком", zap.Int("chunk", tc.Index), zap.Error(stErr))
		} else if status.IsTerminal() {
			log.Info("Генерация отменена во время обработки, пайплайн остановлен",
				zap.String("status", string(status)),
				zap.Int("chunksCompleted", len(audioBuffers)))
			h.countTask(outcomeCancelled)
			return nil
		}

		chunkRow := &models.GenerationChunk{
			ID:             uuid.New(),
			GenerationID:   generationID,
			Index:          tc.Index,
			Text:           tc.Text,
			CharacterCount: tc.CharCount,
			Status:         models.ChunkStatusProcessing,
			Provider:       prov.Name(),
			CreatedAt:      h.now().UTC(),
		}
		if err := h.chunks.Create(ctx, chunkRow); err != nil {
			h.failGeneration(generationID, fmt.Sprintf("failed to persist chunk %d: %v", tc.Index, err), log)
			return nil
		}

		result, attempts, synthErr := h.synthesizeChunk(ctx, prov, tc, voice.ProviderVoiceID, log)
		if synthErr != nil {
			if ctx.Err() != nil {
				// Отмена никогда не превращается в failed
				h.cancelGeneration(generationID, log)
				return nil
			}
			msg := fmt.Sprintf("chunk %d failed after %d attempts: %v", tc.Index, attempts, synthErr)
			if updErr := h.chunks.UpdateStatus(context.Background(), chunkRow.ID, models.ChunkStatusFailed, &msg, attempts-1); updErr != nil {
				log.Error("Не удалось пометить чанк failed", zap.Error(updErr))
			}
			// Чанки с большим индексом не обрабатываются
			h.failGeneration(generationID, msg, log)
			return nil
		}

		chunkPath := fmt.Sprintf("generations/%s/chunk_%04d.%s", generationID, tc.Index, h.audioFormat)
		chunkURL, upErr := h.storage.Upload(ctx, result.Audio, chunkPath, result.ContentType)
		if upErr != nil {
			h.failGeneration(generationID, fmt.Sprintf("failed to store chunk %d audio: %v", tc.Index, upErr), log)
			return nil
		}

		if err := h.chunks.SetCompleted(ctx, chunkRow.ID, chunkURL, result.DurationMs, int64(len(result.Audio)), result.Cost, attempts-1); err != nil {
			log.Error("Не удалось пометить чанк completed", zap.Int("chunk", tc.Index), zap.Error(err))
		}

		audioBuffers = append(audioBuffers, result.Audio)
		durationsMs = append(durationsMs, result.DurationMs)
		totalCost += result.Cost

		completed := len(audioBuffers)
		progress := 100 * completed / len(textChunks)
		if err := h.generations.UpdateProgress(ctx, generationID, completed, progress); err != nil {
			log.Warn("Не удалось обновить прогресс", zap.Int("chunk", tc.Index), zap.Error(err))
		}
	}

	merged, err := h.merge(audioBuffers, audio.MergeOptions{
		Format:           h.audioFormat,
		ChunkDurationsMs: durationsMs,
	})
	if err != nil {
		h.failGeneration(generationID, fmt.Sprintf("failed to merge audio chunks: %v", err), log)
		return nil
	}

	finalPath := fmt.Sprintf("generations/%s/full.%s", generationID, h.audioFormat)
	finalURL, err := h.storage.Upload(ctx, merged.Audio, finalPath, merged.ContentType)
	if err != nil {
		h.failGeneration(generationID, fmt.Sprintf("failed to store merged audio: %v", err), log)
		return nil
	}

	// Терминальная запись не должна зависеть от отмены контекста доставки
	if err := h.generations.SetCompleted(context.Background(), generationID, finalURL, h.audioFormat, merged.DurationMs, merged.SizeBytes, totalCost); err != nil {
		log.Error("Не удалось пометить генерацию completed", zap.Error(err))
		return nil
	}

	log.Info("Генерация завершена",
		zap.Int("chunks", len(textChunks)),
		zap.Float64("actualCost", totalCost),
		zap.Int64("durationMs", merged.DurationMs),
		zap.Duration("elapsed", h.now().Sub(started)))
	h.countTask(outcomeCompleted)
	if h.metrics != nil {
		h.metrics.PipelineDuration.Observe(h.now().Sub(started).Seconds())
	}

	// Списание идет после completed и не влияет на судьбу сообщения
	applied, settleErr := h.settler.Settle(ctx, generationID, gen.UserID, totalCost)
	switch {
	case settleErr != nil:
		h.countSettle("failed")
	case applied:
		h.countSettle("applied")
	default:
		h.countSettle("duplicate")
	}
	return nil
}

// synthesizeChunk вызывает провайдера с лестницей повторов.
// Возвращает результат, число сделанных попыток и последнюю ошибку.
func (h *TaskHandler) synthesizeChunk(ctx context.Context, prov provider.SpeechProvider, tc chunking.Chunk, providerVoiceID string, log *zap.Logger) (*provider.SpeechResult, int, error) {
	var result *provider.SpeechResult
	attempts := 0

	err := h.retryer.Do(ctx, func(opCtx context.Context) error {
		attempts++
		chunkStart := h.now()
		res, callErr := prov.GenerateSpeech(opCtx, provider.SpeechRequest{
			Text:            tc.Text,
			ProviderVoiceID: providerVoiceID,
			OutputFormat:    h.audioFormat,
		})
		if h.metrics != nil {
			h.metrics.ChunkDuration.WithLabelValues(prov.Name()).Observe(h.now().Sub(chunkStart).Seconds())
		}
		if callErr != nil {
			h.countChunkAttempt(prov.Name(), "error")
			log.Warn("Ошибка вызова провайдера",
				zap.Int("chunk", tc.Index),
				zap.Int("attempt", attempts),
				zap.Error(callErr))
			return callErr
		}
		if !res.Success {
			// Отказ провайдера ретраится наравне с транспортной ошибкой
			h.countChunkAttempt(prov.Name(), "refused")
			log.Warn("Провайдер отказал в синтезе",
				zap.Int("chunk", tc.Index),
				zap.Int("attempt", attempts),
				zap.String("providerError", res.ErrorMessage))
			return fmt.Errorf("provider refused: %s", res.ErrorMessage)
		}
		if len(res.Audio) == 0 {
			// Успех без байтов аудио приравнивается к отказу
			h.countChunkAttempt(prov.Name(), "refused")
			log.Warn("Провайдер вернул успех без аудио",
				zap.Int("chunk", tc.Index),
				zap.Int("attempt", attempts))
			return fmt.Errorf("provider returned no audio data")
		}
		h.countChunkAttempt(prov.Name(), "success")
		result = res
		return nil
	}, nil)

	return result, attempts, err
}

// failGeneration фиксирует провал. Пишем в фоновом контексте: терминальный
// статус обязан записаться даже при остановке воркера.
func (h *TaskHandler) failGeneration(id uuid.UUID, message string, log *zap.Logger) {
	log.Error("Генерация провалена", zap.String("reason", message))
	if err := h.generations.UpdateStatus(context.Background(), id, models.GenerationStatusFailed, &message); err != nil {
		log.Error("Не удалось пометить генерацию failed", zap.Error(err))
	}
	h.countTask(outcomeFailed)
}

func (h *TaskHandler) cancelGeneration(id uuid.UUID, log *zap.Logger) {
	log.Info("Обработка прервана отменой")
	if err := h.generations.UpdateStatus(context.Background(), id, models.GenerationStatusCancelled, nil); err != nil {
		log.Error("Не удалось пометить генерацию cancelled", zap.Error(err))
	}
	h.countTask(outcomeCancelled)
}

func (h *TaskHandler) countTask(outcome string) {
	if h.metrics != nil {
		h.metrics.TasksProcessed.WithLabelValues(outcome).Inc()
	}
}

func (h *TaskHandler) countChunkAttempt(providerName, outcome string) {
	if h.metrics != nil {
		h.metrics.ChunkAttempts.WithLabelValues(providerName, outcome).Inc()
	}
}

func (h *TaskHandler) countSettle(outcome string) {
	if h.metrics != nil {
		h.metrics.BillingSettles.WithLabelValues(outcome).Inc()
	}
}
