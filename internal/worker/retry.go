package worker

import (
	"context"
	"time"
)

// RetryPolicy описывает лестницу повторов: максимум попыток и паузы между ними.
// Delays[i] - пауза после (i+1)-й неудачной попытки; len(Delays) == MaxAttempts-1.
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// Retryer выполняет операцию с фиксированными паузами между попытками.
// Один и тот же Retryer используется и для синтеза чанков, и для списания
// кредитов - политики различаются только параметрами.
type Retryer struct {
	policy RetryPolicy

	// wait подменяется в тестах, чтобы не спать по-настоящему
	wait func(ctx context.Context, d time.Duration) error
}

// NewRetryer создает Retryer с указанной политикой.
func NewRetryer(policy RetryPolicy) *Retryer {
	return &Retryer{
		policy: policy,
		wait:   sleepCtx,
	}
}

// Do выполняет op до первого успеха, исчерпания попыток или отмены контекста.
// retryable решает, имеет ли смысл повторять после данной ошибки; nil означает
// "повторяем всегда". Отмена контекста обрывает цикл немедленно, без паузы.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(err error) bool) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt)
		if err := r.wait(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// delayFor возвращает паузу после attempt-й неудачной попытки (attempt с 1).
// Если лестница короче, чем нужно, используется последняя ступень.
func (r *Retryer) delayFor(attempt int) time.Duration {
	if len(r.policy.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(r.policy.Delays) {
		idx = len(r.policy.Delays) - 1
	}
	return r.policy.Delays[idx]
}

// sleepCtx спит d или возвращает ошибку контекста, если тот отменили раньше.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
