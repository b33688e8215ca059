package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docbuddy/src/infrastructure/log"
)

// DefaultTopK is the number of chunks retrieved for a query when unset.
const DefaultTopK = 20

// ChatConfig tunes the query engine
type ChatConfig struct {
	DefaultStore string
	TopK         int
	// RelevanceThreshold drops hits scoring below it. Zero disables filtering.
	RelevanceThreshold float64
	LLMTimeout         time.Duration
}

type chatService struct {
	searchSvc   SearchService
	memory      SessionMemory
	llmProvider LLMProvider
	cfg         ChatConfig
	sessions    *keyedMutex
}

func NewChatService(searchSvc SearchService, memory SessionMemory, llmProvider LLMProvider, cfg ChatConfig) ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &chatService{
		searchSvc:   searchSvc,
		memory:      memory,
		llmProvider: llmProvider,
		cfg:         cfg,
		sessions:    newKeyedMutex(),
	}
}

// Answer runs retrieval, prompt assembly and generation for one query,
// then records the exchange in the session transcript. Queries on the same
// session are handled one at a time so every answer sees the full history.
func (s *chatService) Answer(ctx context.Context, req QueryRequest) (*Answer, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id must not be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	if req.StorePath == "" {
		req.StorePath = s.cfg.DefaultStore
	}
	if req.K <= 0 {
		req.K = s.cfg.TopK
	}

	unlock := s.sessions.Lock(req.SessionID)
	defer unlock()

	chunks, err := s.searchSvc.Search(ctx, req.StorePath, req.Query, req.K)
	if err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}
	chunks = s.filter(chunks)
	if s.cfg.RelevanceThreshold > 0 && len(chunks) == 0 {
		return nil, fmt.Errorf("%w: nothing scored above %.2f", ErrNoResults, s.cfg.RelevanceThreshold)
	}

	history, err := s.memory.GetHistory(ctx, req.SessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, classify("failed to read history", err)
	}

	prompt, err := renderPrompt(buildContext(chunks), formatHistory(history), req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if err := s.memory.AppendTurn(ctx, req.SessionID, RoleHuman, req.Query); err != nil {
		return nil, classify("failed to save query", err)
	}
	if err := s.memory.AppendTurn(ctx, req.SessionID, RoleAI, text); err != nil {
		return nil, classify("failed to save answer", err)
	}

	sources := make([]string, len(chunks))
	for i, c := range chunks {
		sources[i] = c.Source()
	}

	log.Info("Query answered", "session", req.SessionID, "store", req.StorePath, "chunks", len(chunks))
	return &Answer{
		Formatted: formatResponse(text, sources),
		Text:      text,
		Sources:   sources,
		Chunks:    chunks,
	}, nil
}

func (s *chatService) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.llmProvider.Generate(ctx, prompt)
	if err != nil {
		log.Error(err, "LLM generation failed", "elapsed", time.Since(start))
		return "", classify("failed to generate completion", err)
	}
	log.Debug("LLM generation done", "elapsed", time.Since(start), "chars", len(text))
	return text, nil
}

func (s *chatService) filter(chunks []ScoredChunk) []ScoredChunk {
	if s.cfg.RelevanceThreshold <= 0 {
		return chunks
	}
	kept := chunks[:0:0]
	for _, c := range chunks {
		if c.Score >= s.cfg.RelevanceThreshold {
			kept = append(kept, c)
		}
	}
	return kept
}

func (s *chatService) GetHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.memory.GetHistory(ctx, sessionID)
}

func (s *chatService) DeleteHistory(ctx context.Context, sessionID string) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()
	return s.memory.DeleteSession(ctx, sessionID)
}
