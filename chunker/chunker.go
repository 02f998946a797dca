// Package chunker splits raw document text into bounded, overlapping pieces
// with positional metadata. Splitting prefers paragraph and sentence
// boundaries and falls back to hard character cuts for oversized sentences.
// Output is fully deterministic for identical input and parameters, which the
// ingest pipeline relies on for idempotent re-ingestion.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/contentforge/core"
)

// Piece is a single chunk of document text with its position in the document.
type Piece struct {
	Text          string
	PositionIndex int
}

var (
	paragraphSplitter = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitter  = regexp.MustCompile(`[^.!?]+[.!?]*\s*`)
)

// Chunk splits text into pieces of at most maxChunkChars characters.
// Consecutive pieces share an overlap of roughly overlapChars characters so
// context is not lost at boundaries. Requires 0 < overlapChars < maxChunkChars.
// Returns core.ErrInvalidInput for bad parameters or text that is empty after
// whitespace normalization.
func Chunk(text string, maxChunkChars, overlapChars int) ([]Piece, error) {
	if maxChunkChars <= 0 {
		return nil, fmt.Errorf("%w: maxChunkChars %d must be positive", core.ErrInvalidInput, maxChunkChars)
	}
	if overlapChars <= 0 || overlapChars >= maxChunkChars {
		return nil, fmt.Errorf("%w: overlapChars %d must be within (0, %d)", core.ErrInvalidInput, overlapChars, maxChunkChars)
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("%w: text is empty after normalization", core.ErrInvalidInput)
	}

	var (
		pieces  []Piece
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := current.String()
		pieces = append(pieces, Piece{Text: chunk, PositionIndex: len(pieces)})
		current.Reset()
		// Seed the next chunk with the tail of this one.
		current.WriteString(overlapTail(chunk, overlapChars))
	}

	// Cap each part so a seeded overlap plus a joining space never pushes a
	// chunk past maxChunkChars.
	partLimit := maxChunkChars - overlapChars - 1
	if partLimit < 1 {
		partLimit = 1
	}
	for _, sentence := range sentences {
		for _, part := range hardCut(sentence, partLimit) {
			joined := part
			if current.Len() > 0 {
				joined = " " + part
			}
			if current.Len()+len(joined) > maxChunkChars {
				flush()
				joined = part
				if current.Len() > 0 {
					joined = " " + part
				}
			}
			current.WriteString(joined)
		}
	}
	if current.Len() > 0 {
		chunk := current.String()
		// Drop a trailing chunk that holds nothing beyond the seeded overlap.
		if len(pieces) == 0 || chunk != overlapTail(pieces[len(pieces)-1].Text, overlapChars) {
			pieces = append(pieces, Piece{Text: chunk, PositionIndex: len(pieces)})
		}
	}

	return pieces, nil
}

// splitSentences normalizes whitespace and returns the text's sentences in
// document order. Paragraph breaks are honored first so a sentence never
// spans paragraphs.
func splitSentences(text string) []string {
	var sentences []string
	for _, paragraph := range paragraphSplitter.Split(text, -1) {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		if paragraph == "" {
			continue
		}
		for _, sentence := range sentenceSplitter.FindAllString(paragraph, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
		}
	}
	return sentences
}

// hardCut slices a sentence longer than limit into limit-sized segments.
// Sentences within the limit are returned unchanged.
func hardCut(sentence string, limit int) []string {
	if len(sentence) <= limit {
		return []string{sentence}
	}
	var parts []string
	for len(sentence) > limit {
		parts = append(parts, sentence[:limit])
		sentence = sentence[limit:]
	}
	if sentence != "" {
		parts = append(parts, sentence)
	}
	return parts
}

// overlapTail returns the suffix of chunk carried into the next piece,
// advanced to the first word boundary inside the window when one exists.
func overlapTail(chunk string, overlapChars int) string {
	if len(chunk) <= overlapChars {
		return chunk
	}
	tail := chunk[len(chunk)-overlapChars:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}
