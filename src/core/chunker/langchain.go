package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"docbuddy/src/core/knowledgebase"
)

// LangChain delegates splitting to langchaingo's recursive character
// splitter. The splitter trims whitespace around pieces, so offsets are
// recovered by locating each piece in the source; a piece that cannot be
// located gets Start and End of -1. Pieces longer than the chunk size are
// split again by Boundary.
type LangChain struct {
	Separators []string
}

func NewLangChain() *LangChain {
	return &LangChain{Separators: append(append([]string{}, DefaultSeparators...), "")}
}

func (l *LangChain) Split(content string, chunkSize, chunkOverlap int) ([]knowledgebase.Chunk, error) {
	if err := validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(l.Separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)

	pieces, err := splitter.SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]knowledgebase.Chunk, 0, len(pieces))
	from := 0
	for _, p := range pieces {
		if p == "" {
			continue
		}
		start := -1
		if idx := strings.Index(content[from:], p); idx >= 0 {
			at := from + idx
			start = utf8.RuneCountInString(content[:at])
			from = at + 1
			for from < len(content) && !utf8.RuneStart(content[from]) {
				from++
			}
		}

		if utf8.RuneCountInString(p) <= chunkSize {
			chunks = append(chunks, span(p, start, 0, utf8.RuneCountInString(p)))
			continue
		}
		// merged pieces can outgrow chunkSize
		parts, err := NewBoundary().Split(p, chunkSize, chunkOverlap)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			chunks = append(chunks, span(part.Text, start, part.Start, part.End))
		}
	}

	return chunks, nil
}

// span places text found at [from, to) of a piece starting at start in the
// source. An unlocated piece yields -1 offsets.
func span(text string, start, from, to int) knowledgebase.Chunk {
	if start < 0 {
		return knowledgebase.Chunk{Text: text, Start: -1, End: -1}
	}
	return knowledgebase.Chunk{Text: text, Start: start + from, End: start + to}
}

// Strategy names accepted by New
const (
	StrategyBoundary  = "boundary"
	StrategyLangChain = "langchain"
)

// New returns the splitter registered under strategy.
func New(strategy string) (knowledgebase.Splitter, error) {
	switch strategy {
	case "", StrategyBoundary:
		return NewBoundary(), nil
	case StrategyLangChain:
		return NewLangChain(), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker strategy %q", knowledgebase.ErrInvalidInput, strategy)
	}
}
