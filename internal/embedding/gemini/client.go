package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is the embedding model the textbook collection was indexed with.
	DefaultModel   = "models/text-embedding-004"
	defaultTimeout = 30 * time.Second
)

// TaskType tells the embedding service how the vector will be used.
type TaskType string

// TaskRetrievalQuery embeds a search query to be matched against indexed passages.
const TaskRetrievalQuery TaskType = "RETRIEVAL_QUERY"

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini api key is required")

// Config configures the Gemini embeddings client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the Gemini embedContent API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type embedRequest struct {
	Model    string       `json:"model"`
	Content  embedContent `json:"content"`
	TaskType TaskType     `json:"taskType,omitempty"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// NewClient creates a new embeddings client. The timeout is fixed for the
// lifetime of the client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if !strings.HasPrefix(cfg.Model, "models/") {
		cfg.Model = "models/" + cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Model returns the fully qualified embedding model name.
func (c *Client) Model() string { return c.model }

// EmbedQuery embeds text with retrieval-query intent.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text, TaskRetrievalQuery)
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:    c.model,
		Content:  embedContent{Parts: []embedPart{{Text: text}}},
		TaskType: task,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return out.Embedding.Values, nil
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/%s:embedContent", c.baseURL, c.model)
}
