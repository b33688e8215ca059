package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"docbuddy/src/infrastructure/log"
)

const DefaultURL = "http://localhost:11434"

// Client generates completions and embeddings with a local Ollama server
type Client struct {
	api            *api.Client
	chatModel      string
	embeddingModel string
	options        map[string]interface{}
}

// NewClient creates a new Ollama client. A trailing "/api" on baseURL is
// tolerated since the api package adds it itself.
func NewClient(baseURL string, httpClient *http.Client, chatModel, embeddingModel string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		api:            api.NewClient(u, httpClient),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		options: map[string]interface{}{
			"temperature": 0,
		},
	}, nil
}

// Generate performs a non streaming completion for prompt
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   c.chatModel,
		Prompt:  prompt,
		Stream:  &stream,
		Options: c.options,
	}

	var sb strings.Builder
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		log.Error(err, "Failed to make request to ollama", "model", c.chatModel)
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return sb.String(), nil
}

// CreateEmbedding embeds texts in one request
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}
