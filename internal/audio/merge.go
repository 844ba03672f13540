package audio

import (
	"bytes"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoChunks возвращается при попытке склеить пустой список буферов.
var ErrNoChunks = errors.New("no audio chunks to merge")

// ErrFormatMismatch возвращается, когда параметры WAV у чанков не совпадают.
var ErrFormatMismatch = errors.New("audio chunks have mismatched formats")

// MergeOptions - параметры склейки.
type MergeOptions struct {
	// Format - формат входных буферов ("wav" или "mp3").
	Format string
	// ChunkDurationsMs - длительности чанков по порядку. Используются только
	// для форматов, где длительность нельзя вычислить из байтов (mp3).
	ChunkDurationsMs []int64
}

// MergeResult - результат склейки аудио-чанков.
type MergeResult struct {
	Audio       []byte
	ContentType string
	DurationMs  int64
	SizeBytes   int64
}

// MergeChunks склеивает аудио-буферы строго в переданном порядке.
// Для WAV выполняется декодирование и конкатенация сэмплов с пересчетом
// заголовка; длительность считается из итогового числа фреймов.
// Для MP3 фреймы просто конкатенируются, длительность - сумма переданных.
func MergeChunks(ordered [][]byte, opts MergeOptions) (*MergeResult, error) {
	if len(ordered) == 0 {
		return nil, ErrNoChunks
	}

	switch opts.Format {
	case "", "wav":
		return mergeWav(ordered)
	case "mp3":
		return mergeConcat(ordered, "audio/mpeg", opts.ChunkDurationsMs)
	default:
		return nil, fmt.Errorf("unsupported merge format %q", opts.Format)
	}
}

// WavDurationMs возвращает длительность WAV-данных в миллисекундах.
func WavDurationMs(data []byte) (int64, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read wav duration: %w", err)
	}
	return dur.Milliseconds(), nil
}

func mergeWav(ordered [][]byte) (*MergeResult, error) {
	var merged *goaudio.IntBuffer

	for i, data := range ordered {
		dec := wav.NewDecoder(bytes.NewReader(data))
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav chunk %d: %w", i, err)
		}
		if merged == nil {
			merged = &goaudio.IntBuffer{
				Format:         buf.Format,
				SourceBitDepth: buf.SourceBitDepth,
				Data:           buf.Data,
			}
			continue
		}
		if buf.Format.SampleRate != merged.Format.SampleRate ||
			buf.Format.NumChannels != merged.Format.NumChannels ||
			buf.SourceBitDepth != merged.SourceBitDepth {
			return nil, fmt.Errorf("%w: chunk %d", ErrFormatMismatch, i)
		}
		merged.Data = append(merged.Data, buf.Data...)
	}

	if merged == nil || len(merged.Data) == 0 {
		return nil, ErrNoChunks
	}

	bitDepth := merged.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	out := newWriteSeeker()
	enc := wav.NewEncoder(out, merged.Format.SampleRate, bitDepth, merged.Format.NumChannels, 1)
	if err := enc.Write(merged); err != nil {
		return nil, fmt.Errorf("failed to encode merged wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize merged wav: %w", err)
	}

	frames := len(merged.Data) / merged.Format.NumChannels
	durationMs := int64(frames) * 1000 / int64(merged.Format.SampleRate)

	audioBytes := out.Bytes()
	return &MergeResult{
		Audio:       audioBytes,
		ContentType: "audio/wav",
		DurationMs:  durationMs,
		SizeBytes:   int64(len(audioBytes)),
	}, nil
}

// mergeConcat - побайтовая конкатенация (валидна для потоковых форматов вроде mp3).
func mergeConcat(ordered [][]byte, contentType string, durationsMs []int64) (*MergeResult, error) {
	var buf bytes.Buffer
	for _, data := range ordered {
		buf.Write(data)
	}
	var total int64
	for _, d := range durationsMs {
		total += d
	}
	return &MergeResult{
		Audio:       buf.Bytes(),
		ContentType: contentType,
		DurationMs:  total,
		SizeBytes:   int64(buf.Len()),
	}, nil
}
