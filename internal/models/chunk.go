package models

import (
	"time"

	"github.com/google/uuid"
)

// ChunkStatus - статус обработки одного чанка.
type ChunkStatus string

const (
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
)

// GenerationChunk - ограниченный фрагмент входного текста, обрабатываемый одним
// вызовом провайдера. Index (с нуля) задает порядок воспроизведения.
// Строка создается в начале обработки чанка и никогда не удаляется;
// пишет в неё только воркер, владеющий генерацией.
type GenerationChunk struct {
	ID             uuid.UUID   `json:"id"`
	GenerationID   uuid.UUID   `json:"generationId"`
	Index          int         `json:"index"`
	Text           string      `json:"-"`
	CharacterCount int         `json:"characterCount"`
	Status         ChunkStatus `json:"status"`
	Provider       string      `json:"provider"`
	AudioURL       *string     `json:"audioUrl,omitempty"`
	DurationMs     *int64      `json:"durationMs,omitempty"`
	SizeBytes      *int64      `json:"sizeBytes,omitempty"`
	Cost           *float64    `json:"cost,omitempty"`
	ErrorMessage   *string     `json:"errorMessage,omitempty"`
	RetryCount     int         `json:"retryCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
