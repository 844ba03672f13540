package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tts-server/internal/audio"
)

// elevenLabsProvider - адаптер ElevenLabs TTS поверх их HTTP API.
type elevenLabsProvider struct {
	baseURL        string
	apiKey         string
	modelID        string
	costPer1kChars float64
	client         *http.Client
	logger         *zap.Logger
}

// NewElevenLabsProvider создает адаптер ElevenLabs.
func NewElevenLabsProvider(baseURL, apiKey, modelID string, costPer1kChars float64, timeout time.Duration, logger *zap.Logger) SpeechProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &elevenLabsProvider{
		baseURL:        baseURL,
		apiKey:         apiKey,
		modelID:        modelID,
		costPer1kChars: costPer1kChars,
		client:         &http.Client{Timeout: timeout},
		logger:         logger.Named("ElevenLabsProvider"),
	}
}

func (p *elevenLabsProvider) Name() string { return "elevenlabs" }

// ttsRequestBody - тело запроса к ElevenLabs text-to-speech.
type ttsRequestBody struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// GenerateSpeech синтезирует речь через ElevenLabs.
func (p *elevenLabsProvider) GenerateSpeech(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	log := p.logger.With(
		zap.String("voice", req.ProviderVoiceID),
		zap.Int("text_len", len(req.Text)),
	)

	reqBody, err := json.Marshal(ttsRequestBody{Text: req.Text, ModelID: p.modelID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	outputFormat := "pcm_24000"
	accept := "audio/wav"
	contentType := "audio/wav"
	if req.OutputFormat == "mp3" {
		outputFormat = "mp3_44100_128"
		accept = "audio/mpeg"
		contentType = "audio/mpeg"
	}

	endpointURL := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", p.baseURL, req.ProviderVoiceID, outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		log.Warn("ElevenLabs request failed", zap.Error(err))
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Warn("ElevenLabs returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", truncate(bodyBytes, 512)),
		)
		// Отказ API - это "неуспех провайдера", а не ошибка транспорта
		return &SpeechResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("elevenlabs returned status %d: %s", resp.StatusCode, truncate(bodyBytes, 256)),
		}, nil
	}

	if readErr != nil {
		log.Warn("Failed to read ElevenLabs response body", zap.Error(readErr))
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	if len(bodyBytes) == 0 {
		return &SpeechResult{
			Success:      false,
			ErrorMessage: "elevenlabs returned empty audio",
		}, nil
	}

	charCount := len([]rune(req.Text))
	durationMs := estimateDurationMs(charCount)
	if req.OutputFormat != "mp3" {
		if d, derr := audio.WavDurationMs(bodyBytes); derr == nil {
			durationMs = d
		}
	}

	log.Debug("ElevenLabs speech synthesized",
		zap.Int("size_bytes", len(bodyBytes)),
		zap.Int64("duration_ms", durationMs))

	return &SpeechResult{
		Success:             true,
		Audio:               bodyBytes,
		ContentType:         contentType,
		DurationMs:          durationMs,
		Cost:                float64(charCount) / 1000.0 * p.costPer1kChars,
		CharactersProcessed: charCount,
	}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
