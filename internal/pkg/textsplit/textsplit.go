// Package textsplit breaks document text into token-bounded chunks with a
// boundary-preferring recursive split and optional token overlap.
package textsplit

import (
	"errors"
	"strings"
)

// Chunk is one bounded segment of a document.
type Chunk struct {
	Content    string `json:"content"`
	Index      int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
}

// Separator tiers, tried in order. The last tier is a plain space; segments
// that still exceed the budget at that point are emitted as-is.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

var (
	ErrInvalidChunkSize = errors.New("chunk size must be at least 1 token")
	ErrNoChunks         = errors.New("text produced no chunks")
)

type Splitter struct {
	tok Tokenizer
}

func NewSplitter(tok Tokenizer) *Splitter {
	return &Splitter{tok: tok}
}

func (s *Splitter) countTokens(text string) int {
	return len(s.tok.Encode(text))
}

// Split chunks text so that every raw chunk stays within maxTokens, then
// prepends up to overlapTokens trailing tokens of each chunk's predecessor.
// Indices are reassigned sequentially and token counts reflect the final
// (post-overlap) content. Empty or whitespace-only text yields no chunks and
// no error; any other text that chunks to nothing is reported as an error.
func (s *Splitter) Split(text string, maxTokens, overlapTokens int) ([]Chunk, error) {
	if maxTokens < 1 {
		return nil, ErrInvalidChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw := s.splitRaw(text, maxTokens)
	if len(raw) == 0 {
		return nil, ErrNoChunks
	}

	final := s.applyOverlap(raw, overlapTokens)

	chunks := make([]Chunk, len(final))
	for i, content := range final {
		chunks[i] = Chunk{
			Content:    content,
			Index:      i,
			TokenCount: s.countTokens(content),
		}
	}
	return chunks, nil
}

// workItem is one pending piece of text and the separator tier to try next.
type workItem struct {
	text   string
	tier   int
	packed bool // already within budget, emit without further splitting
}

// splitRaw is the recursive boundary-preferring split, expressed as an
// explicit work stack so adversarial inputs cannot grow the call stack.
// Order and packing are identical to the recursive formulation.
func (s *Splitter) splitRaw(text string, maxTokens int) []string {
	var out []string
	stack := []workItem{{text: text, tier: 0}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		trimmed := strings.TrimSpace(item.text)
		if trimmed == "" {
			continue
		}
		if item.packed || s.countTokens(item.text) <= maxTokens {
			out = append(out, trimmed)
			continue
		}

		sepIdx := -1
		for i := item.tier; i < len(separators); i++ {
			if strings.Contains(item.text, separators[i]) {
				sepIdx = i
				break
			}
		}
		if sepIdx == -1 {
			// No separator left at all: word-level greedy packing, where a
			// single oversized run is emitted unsplit.
			out = append(out, s.packWords(item.text, maxTokens)...)
			continue
		}

		nextTier := sepIdx + 1
		if nextTier >= len(separators) {
			nextTier = len(separators) - 1
		}

		pieces := s.packSegments(item.text, separators[sepIdx], nextTier, maxTokens)
		for i := len(pieces) - 1; i >= 0; i-- {
			stack = append(stack, pieces[i])
		}
	}
	return out
}

// packSegments splits text by sep and greedily packs the segments into
// budget-sized buffers. Buffers come back as packed items; a single segment
// that alone exceeds the budget comes back unpacked at the next tier so the
// stack decomposes it further, spliced in place between its neighbours.
func (s *Splitter) packSegments(text, sep string, nextTier, maxTokens int) []workItem {
	parts := strings.Split(text, sep)

	var pieces []workItem
	current := ""
	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + sep + part
		}
		if s.countTokens(candidate) <= maxTokens {
			current = candidate
			continue
		}
		if strings.TrimSpace(current) != "" {
			pieces = append(pieces, workItem{text: current, packed: true})
		}
		if s.countTokens(part) > maxTokens {
			pieces = append(pieces, workItem{text: part, tier: nextTier})
			current = ""
		} else {
			current = part
		}
	}
	if strings.TrimSpace(current) != "" {
		pieces = append(pieces, workItem{text: current, packed: true})
	}
	return pieces
}

func (s *Splitter) packWords(text string, maxTokens int) []string {
	words := strings.Split(text, " ")

	var chunks []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if s.countTokens(candidate) <= maxTokens {
			current = candidate
			continue
		}
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		current = word
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// applyOverlap prepends the trailing overlapTokens tokens of chunk i-1 to
// chunk i. Overlap is always taken from the raw (pre-overlap) predecessor,
// so it never compounds across more than one chunk; chunk 0 is untouched.
func (s *Splitter) applyOverlap(raw []string, overlapTokens int) []string {
	if overlapTokens <= 0 || len(raw) < 2 {
		return raw
	}

	result := make([]string, 0, len(raw))
	result = append(result, raw[0])
	for i := 1; i < len(raw); i++ {
		prevTokens := s.tok.Encode(raw[i-1])
		if len(prevTokens) > overlapTokens {
			prevTokens = prevTokens[len(prevTokens)-overlapTokens:]
		}
		overlapText := strings.TrimSpace(s.tok.Decode(prevTokens))
		if overlapText != "" {
			result = append(result, overlapText+" "+raw[i])
		} else {
			result = append(result, raw[i])
		}
	}
	return result
}
