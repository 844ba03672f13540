package audio

import (
	"bytes"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeWav собирает валидный WAV буфер из сэмплов для тестов.
func encodeWav(t *testing.T, sampleRate, numChannels int, samples []int) []byte {
	t.Helper()

	out := newWriteSeeker()
	enc := wav.NewEncoder(out, sampleRate, 16, numChannels, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: numChannels},
		SourceBitDepth: 16,
		Data:           samples,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return out.Bytes()
}

func TestMergeChunks_Wav(t *testing.T) {
	const sampleRate = 8000

	t.Run("Concatenates samples in order", func(t *testing.T) {
		a := encodeWav(t, sampleRate, 1, []int{1, 2, 3, 4})
		b := encodeWav(t, sampleRate, 1, []int{5, 6, 7, 8})

		result, err := MergeChunks([][]byte{a, b}, MergeOptions{Format: "wav"})
		require.NoError(t, err)

		assert.Equal(t, "audio/wav", result.ContentType)
		assert.Equal(t, int64(len(result.Audio)), result.SizeBytes)

		dec := wav.NewDecoder(bytes.NewReader(result.Audio))
		buf, err := dec.FullPCMBuffer()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, buf.Data)
		assert.Equal(t, sampleRate, buf.Format.SampleRate)
	})

	t.Run("Duration is computed from total frames", func(t *testing.T) {
		// 8000 сэмплов на 8kHz = ровно секунда на чанк
		a := encodeWav(t, sampleRate, 1, make([]int, sampleRate))
		b := encodeWav(t, sampleRate, 1, make([]int, sampleRate))

		result, err := MergeChunks([][]byte{a, b}, MergeOptions{Format: "wav"})
		require.NoError(t, err)
		assert.Equal(t, int64(2000), result.DurationMs)
	})

	t.Run("Sample rate mismatch is rejected", func(t *testing.T) {
		a := encodeWav(t, 8000, 1, []int{1, 2})
		b := encodeWav(t, 16000, 1, []int{3, 4})

		_, err := MergeChunks([][]byte{a, b}, MergeOptions{Format: "wav"})
		require.ErrorIs(t, err, ErrFormatMismatch)
	})

	t.Run("Empty input is rejected", func(t *testing.T) {
		_, err := MergeChunks(nil, MergeOptions{Format: "wav"})
		require.ErrorIs(t, err, ErrNoChunks)
	})
}

func TestMergeChunks_Mp3(t *testing.T) {
	result, err := MergeChunks([][]byte{[]byte("aaa"), []byte("bb")}, MergeOptions{
		Format:           "mp3",
		ChunkDurationsMs: []int64{1500, 700},
	})
	require.NoError(t, err)

	// Для mp3 фреймы конкатенируются, длительность - сумма переданных
	assert.Equal(t, []byte("aaabb"), result.Audio)
	assert.Equal(t, "audio/mpeg", result.ContentType)
	assert.Equal(t, int64(2200), result.DurationMs)
	assert.Equal(t, int64(5), result.SizeBytes)
}

func TestMergeChunks_UnsupportedFormat(t *testing.T) {
	_, err := MergeChunks([][]byte{[]byte("x")}, MergeOptions{Format: "ogg"})
	require.Error(t, err)
}

func TestWavDurationMs(t *testing.T) {
	data := encodeWav(t, 8000, 1, make([]int, 4000)) // полсекунды
	ms, err := WavDurationMs(data)
	require.NoError(t, err)
	assert.Equal(t, int64(500), ms)
}
