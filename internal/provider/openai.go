package provider

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tts-server/internal/audio"
)

// openAIProvider - адаптер speech-эндпоинта OpenAI.
type openAIProvider struct {
	client         *openai.Client
	model          openai.SpeechModel
	costPer1kChars float64
	logger         *zap.Logger
}

// NewOpenAIProvider создает адаптер OpenAI TTS.
func NewOpenAIProvider(apiKey, model string, costPer1kChars float64, logger *zap.Logger) SpeechProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &openAIProvider{
		client:         openai.NewClient(apiKey),
		model:          openai.SpeechModel(model),
		costPer1kChars: costPer1kChars,
		logger:         logger.Named("OpenAIProvider"),
	}
}

func (p *openAIProvider) Name() string { return "openai" }

// GenerateSpeech синтезирует речь через OpenAI speech API.
func (p *openAIProvider) GenerateSpeech(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	log := p.logger.With(
		zap.String("voice", req.ProviderVoiceID),
		zap.Int("text_len", len(req.Text)),
		zap.String("format", req.OutputFormat),
	)

	format := openai.SpeechResponseFormatWav
	contentType := "audio/wav"
	if req.OutputFormat == "mp3" {
		format = openai.SpeechResponseFormatMp3
		contentType = "audio/mpeg"
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.ProviderVoiceID),
		ResponseFormat: format,
	})
	if err != nil {
		log.Warn("OpenAI speech request failed", zap.Error(err))
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audioBytes, err := io.ReadAll(resp)
	if err != nil {
		log.Warn("Failed to read OpenAI speech response", zap.Error(err))
		return nil, fmt.Errorf("failed to read openai speech response: %w", err)
	}
	if len(audioBytes) == 0 {
		// Пустой ответ трактуем как отказ провайдера, а не транспортную ошибку
		return &SpeechResult{
			Success:      false,
			ErrorMessage: "openai returned empty audio",
		}, nil
	}

	charCount := len([]rune(req.Text))
	durationMs := estimateDurationMs(charCount)
	if req.OutputFormat != "mp3" {
		if d, derr := audio.WavDurationMs(audioBytes); derr == nil {
			durationMs = d
		}
	}

	log.Debug("OpenAI speech synthesized",
		zap.Int("size_bytes", len(audioBytes)),
		zap.Int64("duration_ms", durationMs))

	return &SpeechResult{
		Success:             true,
		Audio:               audioBytes,
		ContentType:         contentType,
		DurationMs:          durationMs,
		Cost:                float64(charCount) / 1000.0 * p.costPer1kChars,
		CharactersProcessed: charCount,
	}, nil
}
