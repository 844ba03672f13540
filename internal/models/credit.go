package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditDeduction - запись в леджере списаний кредитов.
// IdempotencyKey уникален на уровне БД: вторая попытка списания с тем же ключом
// отклоняется unique-констрейнтом, а не логикой в памяти. Это и делает
// списание идемпотентным при ретраях и повторных доставках.
// GenerationID без внешнего ключа: записи леджера должны переживать удаление
// пользователей и генераций (аудит).
type CreditDeduction struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uint64     `json:"userId"`
	IdempotencyKey string     `json:"idempotencyKey"`
	GenerationID   *uuid.UUID `json:"generationId,omitempty"`
	Credits        int64      `json:"credits"`
	CreatedAt      time.Time  `json:"createdAt"`
}
