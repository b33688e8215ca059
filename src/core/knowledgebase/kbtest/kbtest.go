// Package kbtest provides deterministic collaborators for tests.
package kbtest

import (
	"context"
	"strings"
	"sync"
)

// Dimensions is the vector length produced by LetterEmbedder.
const Dimensions = 27

// LetterEmbedder embeds text as its a-z letter histogram plus a constant
// bias component, so texts sharing letters score close to each other.
type LetterEmbedder struct {
	mu    sync.Mutex
	calls int
	Err   error
}

func (e *LetterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Embed(t)
	}
	return out, nil
}

func (e *LetterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Calls returns how many embedding requests were made
func (e *LetterEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns the letter histogram vector of text.
func Embed(text string) []float32 {
	v := make([]float32, Dimensions)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[Dimensions-1] = 1
	return v
}

// LLM records prompts and answers with a fixed reply or a function of the prompt.
type LLM struct {
	mu      sync.Mutex
	prompts []string
	Reply   string
	ReplyFn func(prompt string) string
	Err     error
}

func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.Err != nil {
		return "", l.Err
	}
	if l.ReplyFn != nil {
		return l.ReplyFn(prompt), nil
	}
	return l.Reply, nil
}

// Prompts returns a copy of every prompt received so far
func (l *LLM) Prompts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}
