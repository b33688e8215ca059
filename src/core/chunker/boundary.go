package chunker

import (
	"fmt"
	"unicode"

	"docbuddy/src/core/knowledgebase"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Boundary cuts text at the softest boundary that keeps a chunk at least
// half full, falling back to a hard cut at the size limit. Chunks are exact
// substrings of the input and carry their rune offsets, so the source can be
// rebuilt from them. Lengths are counted in runes.
type Boundary struct {
	Separators []string
}

// NewBoundary returns a Boundary splitter using DefaultSeparators.
func NewBoundary() *Boundary {
	return &Boundary{Separators: DefaultSeparators}
}

func (b *Boundary) Split(content string, chunkSize, chunkOverlap int) ([]knowledgebase.Chunk, error) {
	if err := validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	seps := make([][]rune, len(b.Separators))
	for i, s := range b.Separators {
		seps[i] = []rune(s)
	}

	var chunks []knowledgebase.Chunk
	pos := 0
	for pos < n {
		limit := min(pos+chunkSize, n)
		end := limit
		if limit < n {
			end = breakPoint(runes, seps, pos, limit, chunkSize)
		}

		chunks = append(chunks, knowledgebase.Chunk{
			Text:  string(runes[pos:end]),
			Start: pos,
			End:   end,
		})
		if end >= n {
			break
		}

		next := end
		if chunkOverlap > 0 {
			next = wordStart(runes, end-chunkOverlap, end)
		}
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks, nil
}

// breakPoint returns the end offset of the chunk starting at pos. It picks
// the last occurrence of the first separator that leaves the chunk at least
// half of chunkSize long.
func breakPoint(runes []rune, seps [][]rune, pos, limit, chunkSize int) int {
	minLen := max(chunkSize/2, 1)
	for _, sep := range seps {
		if len(sep) == 0 {
			continue
		}
		for i := limit - len(sep); i >= pos; i-- {
			if !hasPrefixAt(runes, sep, i) {
				continue
			}
			if cut := i + len(sep); cut-pos >= minLen {
				return cut
			}
			break
		}
	}
	return limit
}

func hasPrefixAt(runes, sep []rune, at int) bool {
	if at+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

// wordStart moves from forward until it sits right after whitespace, so an
// overlapping chunk does not begin mid word. Returns end if no such spot.
func wordStart(runes []rune, from, end int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < end; i++ {
		if i == 0 || unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func validate(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", knowledgebase.ErrInvalidInput, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", knowledgebase.ErrInvalidInput, chunkSize, chunkOverlap)
	}
	return nil
}
