package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Имена очередей и DLX для задач синтеза.
const (
	// TaskQueueName - основная очередь задач синтеза (по одной задаче на генерацию).
	TaskQueueName = "tts_generation_tasks"
	// DeadLetterExchange и DeadLetterQueue для сообщений, которые не удалось обработать.
	DeadLetterExchange   = "tts_generation_tasks_dlx"
	DeadLetterQueue      = "tts_generation_tasks_dlq"
	DeadLetterRoutingKey = "dlq"
)

// SynthesisTaskPayload - задача синтеза для воркера.
// Очередь дает at-least-once: воркер обязан переживать повторную доставку
// (обработчик no-op для генераций в терминальном статусе).
type SynthesisTaskPayload struct {
	TaskID       string    `json:"task_id"`
	GenerationID uuid.UUID `json:"generation_id"`
	UserID       uint64    `json:"user_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
