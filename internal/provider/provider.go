package provider

import (
	"context"
	"fmt"
)

// SpeechRequest - единый контракт запроса синтеза для всех провайдеров.
type SpeechRequest struct {
	Text            string
	ProviderVoiceID string
	OutputFormat    string // "wav" или "mp3"
}

// SpeechResult - результат одного вызова провайдера.
// Success=false с ErrorMessage - провайдер ответил отказом (ретраится наравне
// с транспортными ошибками).
type SpeechResult struct {
	Success             bool
	Audio               []byte
	ContentType         string
	DurationMs          int64
	Cost                float64
	CharactersProcessed int
	ErrorMessage        string
}

// SpeechProvider - адаптер внешнего TTS-провайдера.
type SpeechProvider interface {
	Name() string
	GenerateSpeech(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// Registry хранит зарегистрированные адаптеры провайдеров по имени.
type Registry struct {
	byName map[string]SpeechProvider
}

// NewRegistry создает реестр из переданных адаптеров.
func NewRegistry(providers ...SpeechProvider) *Registry {
	r := &Registry{byName: make(map[string]SpeechProvider, len(providers))}
	for _, p := range providers {
		r.byName[p.Name()] = p
	}
	return r
}

// Resolve возвращает адаптер по имени провайдера.
func (r *Registry) Resolve(name string) (SpeechProvider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("speech provider %q is not registered", name)
	}
	return p, nil
}

// estimatedCharsPerSecond - грубая скорость речи для оценки длительности,
// когда формат не позволяет вычислить её из байтов.
const estimatedCharsPerSecond = 15

func estimateDurationMs(charCount int) int64 {
	return int64(charCount) * 1000 / estimatedCharsPerSecond
}
