package worker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tts-server/internal/pricing"
	"tts-server/internal/repository"
)

// Settler списывает кредиты за завершенную генерацию.
// Списание идемпотентно: ключом служит ID генерации, повторная доставка
// задачи не приводит к двойному списанию.
type Settler struct {
	credits repository.CreditRepository
	retryer *Retryer
	logger  *zap.Logger
}

// NewSettler создает биллинг-сеттлер с собственной политикой повторов.
func NewSettler(credits repository.CreditRepository, retryer *Retryer, logger *zap.Logger) *Settler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settler{
		credits: credits,
		retryer: retryer,
		logger:  logger.Named("BillingSettler"),
	}
}

// Settle конвертирует фактическую стоимость в кредиты (округление ВВЕРХ)
// и проводит списание. Работа выполняется в контексте, отвязанном от отмены
// пайплайна: если генерация завершилась, долг существует независимо от того,
// что происходит с родительским контекстом.
// Возвращает applied=false без ошибки, если списание по этому ключу уже было.
func (s *Settler) Settle(ctx context.Context, generationID uuid.UUID, userID uint64, actualCost float64) (bool, error) {
	credits := pricing.CostToCredits(actualCost)
	idempotencyKey := generationID.String()

	log := s.logger.With(
		zap.String("generationID", generationID.String()),
		zap.Uint64("userID", userID),
		zap.Float64("actualCost", actualCost),
		zap.Int64("credits", credits))

	billingCtx := context.WithoutCancel(ctx)

	var applied bool
	err := s.retryer.Do(billingCtx, func(opCtx context.Context) error {
		var opErr error
		applied, opErr = s.credits.TryDeductCredits(opCtx, userID, credits, idempotencyKey, generationID)
		return opErr
	}, nil) // все ошибки списания считаем временными

	if err != nil {
		// Попытки исчерпаны - записываем долг в лог для ручной сверки.
		// Генерацию это не валит: аудио уже готово.
		log.Error("Не удалось списать кредиты, требуется ручная сверка (manual reconciliation required)",
			zap.String("idempotencyKey", idempotencyKey),
			zap.Error(err))
		return false, err
	}

	if !applied {
		log.Warn("Списание уже проведено ранее, повтор пропущен",
			zap.String("idempotencyKey", idempotencyKey))
		return false, nil
	}

	log.Info("Кредиты успешно списаны")
	return true, nil
}
