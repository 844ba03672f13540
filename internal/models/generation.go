package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus - статус жизненного цикла генерации.
// Статус движется только вперед: pending -> processing -> {completed|failed|cancelled}.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
	GenerationStatusCancelled  GenerationStatus = "cancelled"
)

// IsTerminal сообщает, является ли статус финальным (из него нет переходов).
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed || s == GenerationStatusCancelled
}

// RoutingPreference - пользовательский приоритет при выборе провайдера.
type RoutingPreference string

const (
	RoutingPreferenceBalanced RoutingPreference = "balanced"
	RoutingPreferenceQuality  RoutingPreference = "quality"
	RoutingPreferenceCost     RoutingPreference = "cost"
	RoutingPreferenceSpeed    RoutingPreference = "speed"
)

// Valid проверяет, что предпочтение маршрутизации известно системе.
func (p RoutingPreference) Valid() bool {
	switch p {
	case RoutingPreferenceBalanced, RoutingPreferenceQuality, RoutingPreferenceCost, RoutingPreferenceSpeed:
		return true
	}
	return false
}

// Generation - одна сквозная задача text->audio и запись её жизненного цикла.
// Создается оркестратором, после этого мутируется только пайплайном воркера.
// Инварианты: ChunksCompleted <= ChunkCount; Progress == floor(100*ChunksCompleted/ChunkCount).
type Generation struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uint64            `json:"userId"`
	VoiceID           uuid.UUID         `json:"voiceId"`
	InputText         string            `json:"-"` // Не отдаем полный текст в списках
	CharacterCount    int               `json:"characterCount"`
	Status            GenerationStatus  `json:"status"`
	RoutingPreference RoutingPreference `json:"routingPreference"`
	SelectedProvider  string            `json:"selectedProvider"`
	AudioURL          *string           `json:"audioUrl,omitempty"`
	AudioFormat       *string           `json:"audioFormat,omitempty"`
	DurationMs        *int64            `json:"durationMs,omitempty"`
	SizeBytes         *int64            `json:"sizeBytes,omitempty"`
	EstimatedCost     float64           `json:"estimatedCost"`
	ActualCost        *float64          `json:"actualCost,omitempty"`
	ChunkCount        int               `json:"chunkCount"`
	ChunksCompleted   int               `json:"chunksCompleted"`
	Progress          int               `json:"progress"` // 0-100
	ErrorMessage      *string           `json:"errorMessage,omitempty"`
	RetryCount        int               `json:"retryCount"`
	CreatedAt         time.Time         `json:"createdAt"`
	StartedAt         *time.Time        `json:"startedAt,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
}
