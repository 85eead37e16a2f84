package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/upb/textbook-rag/services/providers"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	// DefaultModel is used by the agent when GEMINI_MODEL is unset.
	DefaultModel = "gemini-2.5-flash"

	providerName = "gemini"
)

// GeminiAdapter implements the Provider interface for Gemini chat models
type GeminiAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     map[string]*providers.ModelInfo
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(config providers.ProviderConfig) *GeminiAdapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	adapter := &GeminiAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	adapter.initModels()

	return adapter
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return providerName
}

// ChatCompletion performs a chat completion request
func (a *GeminiAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := a.ValidateModel(req.Model); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}

	reqBody, err := json.Marshal(a.buildChatRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	// The request is rebuilt on every attempt; a sent body cannot be replayed.
	var httpResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, a.config.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, providers.NewProviderError(a.Name(), "CANCELLED", "Request cancelled", 0, false, err)
			}
		}

		httpReq, err := a.newRequest(ctx, http.MethodPost, "/chat/completions", reqBody)
		if err != nil {
			return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}

		httpResp, lastErr = a.httpClient.Do(httpReq)
		if lastErr == nil && httpResp.StatusCode < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < a.config.MaxRetries && httpResp != nil {
			httpResp.Body.Close()
			httpResp = nil
		}
	}

	if lastErr != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, ctx.Err() == nil, lastErr)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return a.convertToUnifiedResponse(&chatResp, time.Since(startTime)), nil
}

// IsAvailable checks if the provider is currently available
func (a *GeminiAdapter) IsAvailable(ctx context.Context) bool {
	req, err := a.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return false
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ValidateModel checks if a model is supported
func (a *GeminiAdapter) ValidateModel(model string) error {
	if _, exists := a.models[model]; !exists {
		return fmt.Errorf("model %s is not supported by Gemini provider", model)
	}
	return nil
}

// GetModelInfo returns information about a specific model
func (a *GeminiAdapter) GetModelInfo(model string) (*providers.ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return nil, fmt.Errorf("model %s not found", model)
	}
	return info, nil
}

// ListModels returns all available models, sorted by name
func (a *GeminiAdapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for model := range a.models {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func (a *GeminiAdapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"gemini-2.5-flash": {
			ID:                "gemini-2.5-flash",
			Name:              "Gemini 2.5 Flash",
			Provider:          providerName,
			Description:       "Fast hybrid reasoning model",
			MaxTokens:         65536,
			ContextWindow:     1048576,
			SupportsFunctions: true,
		},
		"gemini-2.5-pro": {
			ID:                "gemini-2.5-pro",
			Name:              "Gemini 2.5 Pro",
			Provider:          providerName,
			Description:       "Most capable Gemini reasoning model",
			MaxTokens:         65536,
			ContextWindow:     1048576,
			SupportsFunctions: true,
		},
		"gemini-2.0-flash": {
			ID:                "gemini-2.0-flash",
			Name:              "Gemini 2.0 Flash",
			Provider:          providerName,
			Description:       "Previous generation workhorse model",
			MaxTokens:         8192,
			ContextWindow:     1048576,
			SupportsFunctions: true,
		},
	}
}

func (a *GeminiAdapter) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// buildChatRequest converts unified request to the OpenAI wire format
func (a *GeminiAdapter) buildChatRequest(req *providers.ChatRequest) *chatCompletionRequest {
	out := &chatCompletionRequest{
		Model:      req.Model,
		Messages:   make([]wireMessage, len(req.Messages)),
		ToolChoice: req.ToolChoice,
	}

	for i, msg := range req.Messages {
		wm := wireMessage{
			Role:       msg.Role,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		// Assistant turns that only carry tool calls send a null content.
		if msg.Content != "" || len(msg.ToolCalls) == 0 {
			content := msg.Content
			wm.Content = &content
		}
		for _, call := range msg.ToolCalls {
			args := string(call.Arguments)
			if args == "" {
				args = "{}"
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: wireFunctionCall{Name: call.Name, Arguments: args},
			})
		}
		out.Messages[i] = wm
	}

	for _, tool := range req.Tools {
		params := tool.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}

	return out
}

// convertToUnifiedResponse converts the wire response to unified format
func (a *GeminiAdapter) convertToUnifiedResponse(resp *chatCompletionResponse, latency time.Duration) *providers.ChatResponse {
	out := &providers.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(resp.Created, 0),
	}

	for i, choice := range resp.Choices {
		msg := providers.Message{
			Role: choice.Message.Role,
			Name: choice.Message.Name,
		}
		if choice.Message.Content != nil {
			msg.Content = *choice.Message.Content
		}
		for _, call := range choice.Message.ToolCalls {
			args := call.Function.Arguments
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: json.RawMessage(args),
			})
		}
		out.Choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: choice.FinishReason,
		}
	}

	return out
}

// handleErrorResponse handles Gemini error responses. The compatibility
// endpoint returns either an error object or a one-element array of them.
func (a *GeminiAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		var list []errorResponse
		if err := json.Unmarshal(body, &list); err != nil || len(list) == 0 || list[0].Error.Message == "" {
			return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, retryable, nil)
		}
		errResp = list[0]
	}

	code := errResp.Error.Status
	if code == "" {
		code = errResp.Error.Type
	}
	message := errResp.Error.Message
	if code != "" && !strings.Contains(message, code) {
		message = code + ": " + message
	}

	return providers.NewProviderError(
		a.Name(),
		code,
		message,
		statusCode,
		retryable,
		nil,
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ providers.Provider = (*GeminiAdapter)(nil)

// OpenAI-compatible wire types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error wireError `json:"error"`
}

type wireError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Type    string          `json:"type"`
}
