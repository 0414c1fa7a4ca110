package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk size in bytes when none is configured.
const DefaultChunkSize = 1500

// BoundaryWindow is how far on either side of a raw boundary we look for a
// newline to cut at instead.
const BoundaryWindow = 100

// ErrInvalidSize is returned by SegmentE for a non-positive target size.
var ErrInvalidSize = errors.New("chunker: target size must be positive")

// Chunk is a contiguous slice of the source text, ready for extraction.
type Chunk struct {
	Index int    // Sequence number within the document
	Start int    // Byte offset of the first byte (inclusive)
	End   int    // Byte offset after the last byte (exclusive)
	Text  string // text[Start:End]
}

// Segment splits text into chunks of roughly targetSize bytes, preferring to
// cut at a newline near each boundary. A non-positive targetSize falls back to
// DefaultChunkSize. Concatenating the Text of the returned chunks yields text.
func Segment(text string, targetSize int) []Chunk {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	chunks, _ := SegmentE(text, targetSize)
	return chunks
}

// SegmentE is Segment without the size fallback.
func SegmentE(text string, targetSize int) ([]Chunk, error) {
	if targetSize <= 0 {
		return nil, ErrInvalidSize
	}
	if text == "" {
		return []Chunk{}, nil
	}

	chunks := make([]Chunk, 0, len(text)/targetSize+1)
	start := 0
	for start < len(text) {
		end := start + targetSize
		if end < len(text) {
			end = cutPoint(text, start, end)
		} else {
			end = len(text)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		start = end
	}
	return chunks, nil
}

// cutPoint picks where a chunk starting at start should end given the raw
// boundary. The search window is clamped to (start, len(text)] so every chunk
// is non-empty.
func cutPoint(text string, start, boundary int) int {
	lo := max(boundary-BoundaryWindow, start+1)
	hi := min(boundary+BoundaryWindow, len(text))
	if lo < hi {
		if i := strings.IndexByte(text[lo:hi], '\n'); i >= 0 {
			return lo + i
		}
	}

	// No newline nearby: cut at the boundary, backed off to a rune start.
	cut := boundary
	for cut > start+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if !utf8.RuneStart(text[cut]) {
		// Whole window is one multi-byte rune; move forward past it instead.
		for cut < len(text) && !utf8.RuneStart(text[cut]) {
			cut++
		}
	}
	return cut
}
