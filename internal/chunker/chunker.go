// Package chunker splits cleaned markdown into overlapping size-bounded
// chunks for embedding. Splitting respects document structure: paragraph
// breaks first, then lines, sentences, and finally words.
package chunker

import (
	"strings"
)

const (
	// DefaultMaxSize is the target maximum chunk length in characters.
	DefaultMaxSize = 512
	// DefaultOverlap is how many trailing characters of a chunk are
	// repeated at the start of the next one.
	DefaultOverlap = 50
)

// Options configures chunking. Zero values fall back to the defaults.
type Options struct {
	MaxSize int
	Overlap int
}

func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Overlap <= 0 || o.Overlap >= o.MaxSize {
		o.Overlap = DefaultOverlap
	}
	return o
}

// separators in order of preference. Each splitter keeps its separator
// attached to the preceding piece so joins don't lose structure.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk splits content into chunks of at most opts.MaxSize characters with
// opts.Overlap characters of overlap between successive chunks. Chunks are
// trimmed; empty input yields an empty slice.
func Chunk(content string, opts Options) []string {
	opts = opts.withDefaults()

	if strings.TrimSpace(content) == "" {
		return []string{}
	}

	pieces := splitRecursive(content, opts.MaxSize, 0)
	merged := mergeWithOverlap(pieces, opts)

	chunks := make([]string, 0, len(merged))
	for _, c := range merged {
		c = strings.TrimSpace(c)
		if c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// splitRecursive breaks text into pieces no longer than maxSize, trying
// separators from coarsest to finest. A piece that fits is returned as is;
// one that doesn't is split on the next separator down. Past the last
// separator the piece is hard-cut, accepting a mid-word break only when a
// single word exceeds maxSize.
func splitRecursive(text string, maxSize, sepIndex int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}
	if sepIndex >= len(separators) {
		return hardSplit(text, maxSize)
	}

	sep := separators[sepIndex]
	parts := splitKeepSeparator(text, sep)
	if len(parts) == 1 {
		// Separator not present; try the next finer one
		return splitRecursive(text, maxSize, sepIndex+1)
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(part) <= maxSize {
			out = append(out, part)
		} else {
			out = append(out, splitRecursive(part, maxSize, sepIndex+1)...)
		}
	}
	return out
}

// splitKeepSeparator splits s on sep, keeping sep attached to the left piece.
func splitKeepSeparator(s, sep string) []string {
	raw := strings.Split(s, sep)
	if len(raw) == 1 {
		return raw
	}
	parts := make([]string, 0, len(raw))
	for i, piece := range raw {
		if i < len(raw)-1 {
			piece += sep
		}
		if piece != "" {
			parts = append(parts, piece)
		}
	}
	return parts
}

func hardSplit(text string, maxSize int) []string {
	out := make([]string, 0, len(text)/maxSize+1)
	for len(text) > maxSize {
		out = append(out, text[:maxSize])
		text = text[maxSize:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// mergeWithOverlap greedily packs pieces into chunks up to MaxSize, seeding
// each new chunk with the tail of the previous one. The seed is dropped when
// it would not leave room for the next piece, so a maximally sized piece
// still yields a chunk within the bound.
func mergeWithOverlap(pieces []string, opts Options) []string {
	chunks := make([]string, 0)
	var current strings.Builder
	seedLen := 0

	flush := func() {
		// Nothing beyond the overlap seed yet
		if current.Len() <= seedLen {
			return
		}
		chunk := current.String()
		chunks = append(chunks, chunk)
		current.Reset()
		if opts.Overlap > 0 {
			current.WriteString(overlapTail(chunk, opts.Overlap))
		}
		seedLen = current.Len()
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > opts.MaxSize {
			flush()
			if current.Len()+len(piece) > opts.MaxSize {
				current.Reset()
				seedLen = 0
			}
		}
		current.WriteString(piece)
		// A single oversized piece (hard-split output already bounds these)
		// is emitted on its own
		if current.Len() >= opts.MaxSize {
			flush()
		}
	}

	if current.Len() > seedLen {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// overlapTail returns the last n characters of chunk, extended left to the
// previous word boundary so the overlap doesn't start mid-word.
func overlapTail(chunk string, n int) string {
	if len(chunk) <= n {
		return chunk
	}
	tail := chunk[len(chunk)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}
