// Package textutil provides text processing helpers for the chatbot:
// chunk splitting, similarity scoring, and display-name formatting.
package textutil

import (
	"math"
	"strings"
	"unicode"
)

// CosineSimilarity computes the cosine similarity of two vectors.
// The result is in [-1, 1]; zero-length or mismatched vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aa, bb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aa += x * x
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return dot / math.Sqrt(aa*bb)
}

// TextChunk is a piece of a larger text together with the character offset
// where it starts. Offsets count Unicode characters, not bytes.
type TextChunk struct {
	Text       string
	StartIndex int
}

// SplitIntoChunks splits text into overlapping chunks of at most chunkSize
// characters with the given overlap, recording each chunk's start offset.
func SplitIntoChunks(text string, chunkSize, overlap int) []TextChunk {
	if chunkSize <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []TextChunk{{Text: text, StartIndex: 0}}
	}

	// Clamp the stride to [1, chunkSize]: a negative overlap would skip
	// text, and an overlap at or above chunkSize would never advance.
	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}
	if step > chunkSize {
		step = chunkSize
	}

	chunks := make([]TextChunk, 0, (len(runes)+step-1)/step)
	for start := 0; ; start += step {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, TextChunk{Text: string(runes[start:]), StartIndex: start})
			return chunks
		}
		chunks = append(chunks, TextChunk{Text: string(runes[start:end]), StartIndex: start})
	}
}

// TruncateString truncates s to at most maxLen Unicode characters.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	// A byte count within the limit bounds the character count too.
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// DisplayTitle converts an identifier like "higher_education" into a
// human-readable title: underscores become spaces and every word is
// capitalized ("apel" becomes "Apel").
func DisplayTitle(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
