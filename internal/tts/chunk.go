package tts

import (
	"strings"
	"unicode/utf8"
)

// MaxChunkLength is the longest text the upstream accepts in one request.
const MaxChunkLength = 200

// Chunk is one request-sized piece of narration.
type Chunk struct {
	Index int
	Text  string
}

// SplitNarration flattens line breaks and packs words into chunks of at most
// MaxChunkLength characters. A single word longer than the limit is split.
func SplitNarration(text string) []Chunk {
	words := strings.Fields(text)
	var (
		chunks  []Chunk
		current strings.Builder
		length  int
	)
	flush := func() {
		if length == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: current.String()})
		current.Reset()
		length = 0
	}
	for _, word := range words {
		for utf8.RuneCountInString(word) > MaxChunkLength {
			flush()
			head, tail := splitRunes(word, MaxChunkLength)
			chunks = append(chunks, Chunk{Index: len(chunks), Text: head})
			word = tail
		}
		wordLen := utf8.RuneCountInString(word)
		if length > 0 && length+1+wordLen > MaxChunkLength {
			flush()
		}
		if length > 0 {
			current.WriteByte(' ')
			length++
		}
		current.WriteString(word)
		length += wordLen
	}
	flush()
	return chunks
}

func splitRunes(s string, n int) (string, string) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], s[i:]
		}
		count++
	}
	return s, ""
}
