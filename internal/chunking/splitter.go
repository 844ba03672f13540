package chunking

import (
	"strings"
	"unicode"
)

// Options - параметры разбиения текста.
type Options struct {
	// MaxChunkChars - максимальная длина чанка в рунах.
	MaxChunkChars int
}

// DefaultMaxChunkChars используется, если MaxChunkChars не задан.
const DefaultMaxChunkChars = 1000

// Chunk - один фрагмент текста в порядке воспроизведения.
type Chunk struct {
	Index     int
	Text      string
	CharCount int
	StartPos  int // Позиция первой руны фрагмента в исходном тексте
	EndPos    int // Позиция за последней руной фрагмента
}

// SplitText детерминированно разбивает текст на упорядоченные чанки.
// Разбиение идет по границам предложений; предложения упаковываются в чанк,
// пока не превышен лимит. Предложение длиннее лимита режется жестко.
// Функция обязана давать одинаковый результат на этапе оценки и на этапе
// исполнения, поэтому никакой рандомизации и никакого состояния.
func SplitText(text string, opts Options) []Chunk {
	maxChars := opts.MaxChunkChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	runes := []rune(text)
	sentences := splitSentences(runes)

	var chunks []Chunk
	var current []rune
	currentStart := 0

	flush := func(end int) {
		trimmed := strings.TrimSpace(string(current))
		if trimmed == "" {
			current = nil
			return
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      trimmed,
			CharCount: len([]rune(trimmed)),
			StartPos:  currentStart,
			EndPos:    end,
		})
		current = nil
	}

	pos := 0
	for _, s := range sentences {
		sLen := len(s)
		switch {
		case len(current)+sLen <= maxChars:
			if len(current) == 0 {
				currentStart = pos
			}
			current = append(current, s...)
		case sLen > maxChars:
			// Предложение само по себе не влезает: закрываем текущий чанк
			// и режем предложение жестко по лимиту.
			flush(pos)
			for off := 0; off < sLen; off += maxChars {
				end := off + maxChars
				if end > sLen {
					end = sLen
				}
				currentStart = pos + off
				current = append([]rune(nil), s[off:end]...)
				flush(pos + end)
			}
		default:
			flush(pos)
			currentStart = pos
			current = append([]rune(nil), s...)
		}
		pos += sLen
	}
	flush(pos)

	return chunks
}

// EstimateChunkCount возвращает количество чанков, которое даст SplitText.
func EstimateChunkCount(text string, opts Options) int {
	return len(SplitText(text, opts))
}

// splitSentences режет текст на предложения по терминаторам . ! ? …
// с последующим пробельным символом (или концом текста). Терминатор и
// пробелы остаются в составе предложения, чтобы сумма длин равнялась длине текста.
func splitSentences(runes []rune) [][]rune {
	var sentences [][]rune
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		// Съедаем повторяющиеся терминаторы ("?!", "...")
		j := i
		for j+1 < len(runes) && isSentenceTerminator(runes[j+1]) {
			j++
		}
		// Граница предложения только если дальше пробел или конец текста
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		// Включаем следующие за терминатором пробелы в это же предложение
		for j+1 < len(runes) && unicode.IsSpace(runes[j+1]) {
			j++
		}
		sentences = append(sentences, runes[start:j+1])
		start = j + 1
		i = j
	}
	if start < len(runes) {
		sentences = append(sentences, runes[start:])
	}
	return sentences
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}
