package models

import (
	"time"

	"github.com/google/uuid"
)

// Voice - голос из каталога, привязанный к конкретному TTS-провайдеру.
type Voice struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Provider        string    `json:"provider"`
	ProviderVoiceID string    `json:"providerVoiceId"`
	Language        string    `json:"language"`
	PreviewURL      *string   `json:"previewUrl,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// User - пользователь с балансом кредитов.
type User struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	CreditBalance int64     `json:"creditBalance"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GenerationFeedback - оценка результата генерации пользователем.
// Ключ (GenerationID, UserID) уникален, повторная отправка перезаписывает запись.
type GenerationFeedback struct {
	ID           uuid.UUID `json:"id"`
	GenerationID uuid.UUID `json:"generationId"`
	UserID       uint64    `json:"userId"`
	Rating       int       `json:"rating"` // 1-5
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
