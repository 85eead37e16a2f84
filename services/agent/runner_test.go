package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/textbook-rag/internal/rag"
	"github.com/upb/textbook-rag/services"
	"github.com/upb/textbook-rag/services/providers"
	"go.uber.org/zap"
)

// MockProvider is a mock implementation of providers.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(*providers.ChatRequest) *providers.ChatResponse); ok {
		return fn(req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.ChatResponse), args.Error(1)
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *MockProvider) ValidateModel(model string) error { return nil }

func (m *MockProvider) GetModelInfo(model string) (*providers.ModelInfo, error) {
	return &providers.ModelInfo{ID: model}, nil
}

func (m *MockProvider) ListModels() []string { return []string{"gemini-2.5-flash"} }

// stubSearcher returns fixed records and remembers its last call
type stubSearcher struct {
	records   []rag.ContentRecord
	lastQuery string
	lastTopK  int
	calls     int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int) []rag.ContentRecord {
	s.calls++
	s.lastQuery = query
	s.lastTopK = topK
	return s.records
}

func reply(content string, calls ...providers.ToolCall) *providers.ChatResponse {
	return &providers.ChatResponse{
		ID: "resp",
		Choices: []providers.Choice{{
			Message: providers.Message{Role: providers.RoleAssistant, Content: content, ToolCalls: calls},
		}},
		Usage: providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func newTestRunner(t *testing.T, provider providers.Provider, searcher ContentSearcher, maxTurns int) *Runner {
	t.Helper()
	tools, err := NewToolset(NewSearchTool(searcher), NewFormatTool())
	require.NoError(t, err)
	return NewRunner(provider, tools, Config{Model: "gemini-2.5-flash", MaxTurns: maxTurns}, zap.NewNop())
}

func TestRunner_Run_EmptyInput(t *testing.T) {
	provider := new(MockProvider)
	runner := newTestRunner(t, provider, &stubSearcher{}, 0)

	for _, input := range []string{"", "   ", "\n\t"} {
		result, err := runner.Run(context.Background(), input)

		assert.Nil(t, result)
		assert.True(t, services.IsValidationError(err))
	}
	provider.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestRunner_Run_DirectAnswer(t *testing.T) {
	provider := new(MockProvider)
	runner := newTestRunner(t, provider, &stubSearcher{}, 0)

	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		return req.Model == "gemini-2.5-flash" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == providers.RoleSystem &&
			req.Messages[0].Content == DefaultInstructions &&
			req.Messages[1].Content == "Hello" &&
			len(req.Tools) == 2 &&
			req.Tools[0].Name == SearchToolName &&
			req.Tools[1].Name == FormatToolName
	})).Return(reply("Hi! Ask me about the textbook."), nil).Once()

	result, err := runner.Run(context.Background(), "Hello")

	require.NoError(t, err)
	assert.Equal(t, "Hi! Ask me about the textbook.", result.Answer())
	assert.Equal(t, 1, result.Turns)
	assert.Empty(t, result.ToolCalls)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 15, result.Usage.TotalTokens)
	provider.AssertExpectations(t)
}

func TestRunner_Run_SearchFormatAnswer(t *testing.T) {
	provider := new(MockProvider)
	searcher := &stubSearcher{records: []rag.ContentRecord{
		{Text: "A degree of freedom is an independent motion.", Title: "Kinematics", Heading: "DOF", Slug: "kinematics", Score: 0.91},
	}}
	runner := newTestRunner(t, provider, searcher, 0)

	searchCall := providers.ToolCall{ID: "call-1", Name: SearchToolName, Arguments: json.RawMessage(`{"query":"degree of freedom","top_k":3}`)}
	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		return len(req.Messages) == 2
	})).Return(reply("", searchCall), nil).Once()

	var formatCall providers.ToolCall
	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		if len(req.Messages) != 4 {
			return false
		}
		toolMsg := req.Messages[3]
		if toolMsg.Role != providers.RoleTool || toolMsg.ToolCallID != "call-1" {
			return false
		}
		formatCall = providers.ToolCall{
			ID:        "call-2",
			Name:      FormatToolName,
			Arguments: json.RawMessage(`{"results":` + toolMsg.Content + `}`),
		}
		return true
	})).Return(func(req *providers.ChatRequest) *providers.ChatResponse {
		return reply("", formatCall)
	}, nil).Once()

	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		return len(req.Messages) == 6 &&
			strings.Contains(req.Messages[5].Content, "--- Source 1 ---\nChapter: Kinematics\nSection: DOF")
	})).Return(reply("A degree of freedom is an independent motion (Chapter: Kinematics, Section: DOF)."), nil).Once()

	result, err := runner.Run(context.Background(), "What is a degree of freedom?")

	require.NoError(t, err)
	assert.Equal(t, "A degree of freedom is an independent motion (Chapter: Kinematics, Section: DOF).", result.Answer())
	assert.Equal(t, 3, result.Turns)
	assert.Equal(t, 45, result.Usage.TotalTokens)
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, SearchToolName, result.ToolCalls[0].Name)
	assert.Equal(t, FormatToolName, result.ToolCalls[1].Name)
	assert.False(t, result.ToolCalls[0].Failed)
	assert.Equal(t, "degree of freedom", searcher.lastQuery)
	assert.Equal(t, 3, searcher.lastTopK)
	provider.AssertExpectations(t)
}

func TestRunner_Run_ToolFailuresAreReportedToModel(t *testing.T) {
	tests := []struct {
		name       string
		call       providers.ToolCall
		wantOutput string
	}{
		{
			name:       "unknown tool",
			call:       providers.ToolCall{ID: "c1", Name: "delete_book", Arguments: json.RawMessage(`{}`)},
			wantOutput: "Error: unknown tool delete_book",
		},
		{
			name:       "malformed arguments",
			call:       providers.ToolCall{ID: "c1", Name: SearchToolName, Arguments: json.RawMessage(`{"query":`)},
			wantOutput: "Error: invalid arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			searcher := &stubSearcher{}
			runner := newTestRunner(t, provider, searcher, 0)

			provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
				return len(req.Messages) == 2
			})).Return(reply("", tt.call), nil).Once()
			provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
				return len(req.Messages) == 4 && strings.HasPrefix(req.Messages[3].Content, tt.wantOutput)
			})).Return(reply("The textbook does not cover that."), nil).Once()

			result, err := runner.Run(context.Background(), "question")

			require.NoError(t, err)
			assert.Equal(t, "The textbook does not cover that.", result.Answer())
			require.Len(t, result.ToolCalls, 1)
			assert.True(t, result.ToolCalls[0].Failed)
			assert.Equal(t, 0, searcher.calls)
			provider.AssertExpectations(t)
		})
	}
}

func TestRunner_Run_SynthesizesMissingToolCallIDs(t *testing.T) {
	provider := new(MockProvider)
	runner := newTestRunner(t, provider, &stubSearcher{}, 0)

	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		return len(req.Messages) == 2
	})).Return(reply("", providers.ToolCall{Name: SearchToolName, Arguments: json.RawMessage(`{"query":"x"}`)}), nil).Once()
	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		if len(req.Messages) != 4 {
			return false
		}
		id := req.Messages[2].ToolCalls[0].ID
		return strings.HasPrefix(id, "call_") && req.Messages[3].ToolCallID == id
	})).Return(reply("done"), nil).Once()

	result, err := runner.Run(context.Background(), "question")

	require.NoError(t, err)
	assert.Equal(t, "done", result.Answer())
	provider.AssertExpectations(t)
}

func TestRunner_Run_DoesNotModifyProviderResponse(t *testing.T) {
	provider := new(MockProvider)
	runner := newTestRunner(t, provider, &stubSearcher{}, 0)

	first := reply("", providers.ToolCall{Name: SearchToolName, Arguments: json.RawMessage(`{"query":"x"}`)})
	provider.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req *providers.ChatRequest) bool {
		return len(req.Messages) == 2
	})).Return(first, nil).Once()
	provider.On("ChatCompletion", mock.Anything, mock.Anything).Return(reply("done"), nil).Once()

	result, err := runner.Run(context.Background(), "question")

	require.NoError(t, err)
	assert.Empty(t, first.Choices[0].Message.ToolCalls[0].ID)
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(result.ToolCalls[0].ID, "call_"))
}

func TestRunner_Run_ProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		check       func(error) bool
		wantMessage string
	}{
		{
			name:        "quota exhausted status",
			err:         providers.NewProviderError("gemini", "RESOURCE_EXHAUSTED", "quota", 429, false, nil),
			check:       services.IsRateLimitError,
			wantMessage: services.ErrRateLimitExceeded.Message,
		},
		{
			name:        "resource exhausted text",
			err:         errors.New("Resource exhausted"),
			check:       services.IsRateLimitError,
			wantMessage: services.ErrRateLimitExceeded.Message,
		},
		{
			name:        "server error",
			err:         providers.NewProviderError("gemini", "INTERNAL", "backend error", 500, true, nil),
			check:       services.IsExternalError,
			wantMessage: services.ErrProviderError.Message,
		},
		{
			name:        "context cancelled",
			err:         context.Canceled,
			check:       services.IsExternalError,
			wantMessage: services.ErrProviderError.Message,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			runner := newTestRunner(t, provider, &stubSearcher{}, 0)
			provider.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			result, err := runner.Run(context.Background(), "question")

			assert.Nil(t, result)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification for %v", err)
			assert.True(t, errors.Is(err, tt.err))

			var domainErr *services.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tt.wantMessage, domainErr.Message)
		})
	}
}

func TestRunner_Run_NoChoices(t *testing.T) {
	provider := new(MockProvider)
	runner := newTestRunner(t, provider, &stubSearcher{}, 0)
	provider.On("ChatCompletion", mock.Anything, mock.Anything).Return(&providers.ChatResponse{}, nil).Once()

	_, err := runner.Run(context.Background(), "question")

	assert.True(t, services.IsExternalError(err))
}

func TestRunner_Run_MaxTurnsExceeded(t *testing.T) {
	provider := new(MockProvider)
	searcher := &stubSearcher{}
	runner := newTestRunner(t, provider, searcher, 3)

	call := providers.ToolCall{ID: "loop", Name: SearchToolName, Arguments: json.RawMessage(`{"query":"again"}`)}
	provider.On("ChatCompletion", mock.Anything, mock.Anything).Return(reply("still looking", call), nil)

	result, err := runner.Run(context.Background(), "question")

	assert.Nil(t, result)
	assert.True(t, services.IsInternalError(err))
	assert.True(t, errors.Is(err, services.ErrMaxTurnsExceeded))
	assert.Equal(t, 3, services.GetErrorDetails(err)["max_turns"])
	assert.Empty(t, services.ErrMaxTurnsExceeded.Details)
	provider.AssertNumberOfCalls(t, "ChatCompletion", 3)
	assert.Equal(t, 3, searcher.calls)
}

func TestNewRunner_Defaults(t *testing.T) {
	runner := NewRunner(new(MockProvider), nil, Config{Model: "gemini-2.5-flash"}, nil)

	assert.Equal(t, DefaultMaxTurns, runner.config.MaxTurns)
	assert.Equal(t, DefaultInstructions, runner.config.Instructions)
	assert.Equal(t, 0, runner.tools.Len())
}
