package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/textbook-rag/services"
	"github.com/upb/textbook-rag/services/providers"
	"go.uber.org/zap"
)

// DefaultMaxTurns bounds the number of model calls in one run.
const DefaultMaxTurns = 10

// Agent answers a single user input.
type Agent interface {
	Run(ctx context.Context, input string) (*RunResult, error)
}

// Config holds the model settings of a Runner.
type Config struct {
	Model        string
	Instructions string
	MaxTurns     int
	Temperature  float64
}

// Runner drives a tool-calling loop against an LLM provider.
type Runner struct {
	provider providers.Provider
	tools    *Toolset
	config   Config
	logger   *zap.Logger
}

// NewRunner creates a new Runner
func NewRunner(provider providers.Provider, tools *Toolset, config Config, logger *zap.Logger) *Runner {
	if config.Instructions == "" {
		config.Instructions = DefaultInstructions
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if tools == nil {
		tools = &Toolset{tools: map[string]Tool{}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		provider: provider,
		tools:    tools,
		config:   config,
		logger:   logger.Named("agent"),
	}
}

// Run sends input to the model and executes requested tool calls until the
// model replies without any, or MaxTurns model calls have been made.
func (r *Runner) Run(ctx context.Context, input string) (*RunResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, services.ErrEmptyQuery
	}

	start := time.Now()
	result := &RunResult{
		RunID: uuid.New().String(),
		Input: input,
	}
	logger := r.logger.With(zap.String("run_id", result.RunID))

	logger.Info("agent run started",
		zap.String("model", r.config.Model),
		zap.Int("max_turns", r.config.MaxTurns))

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: r.config.Instructions},
		{Role: providers.RoleUser, Content: input},
	}
	definitions := r.tools.Definitions()

	for turn := 1; turn <= r.config.MaxTurns; turn++ {
		req := &providers.ChatRequest{
			Model:       r.config.Model,
			Messages:    messages,
			Tools:       definitions,
			Temperature: r.config.Temperature,
			Metadata:    map[string]string{"run_id": result.RunID},
		}

		logger.Debug("calling model", zap.Int("turn", turn), zap.Int("messages", len(messages)))

		resp, err := r.provider.ChatCompletion(ctx, req)
		if err != nil {
			logger.Error("model call failed",
				zap.Int("turn", turn),
				zap.Bool("retryable", providers.IsRetryable(err)),
				zap.Error(err))
			return nil, classifyProviderError(err)
		}

		result.Turns = turn
		result.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Usage.CompletionTokens += resp.Usage.CompletionTokens
		result.Usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.Choices) == 0 {
			return nil, services.ErrProviderError.Wrap(errors.New("model returned no choices"))
		}

		reply := resp.Choices[0].Message
		if reply.Role == "" {
			reply.Role = providers.RoleAssistant
		}
		// Owned copy; the provider's response is left untouched.
		reply.ToolCalls = append([]providers.ToolCall(nil), reply.ToolCalls...)
		for i := range reply.ToolCalls {
			if reply.ToolCalls[i].ID == "" {
				reply.ToolCalls[i].ID = "call_" + uuid.New().String()
			}
		}

		messages = append(messages, reply)
		result.Messages = append(result.Messages, reply)

		if len(reply.ToolCalls) == 0 {
			result.FinalOutput = reply.Content
			result.Duration = time.Since(start)
			logger.Info("agent run completed",
				zap.Int("turns", result.Turns),
				zap.Int("tool_calls", len(result.ToolCalls)),
				zap.Int("total_tokens", result.Usage.TotalTokens),
				zap.Duration("duration", result.Duration))
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			invocation := r.invoke(ctx, logger, call)
			result.ToolCalls = append(result.ToolCalls, invocation)

			toolMsg := providers.Message{
				Role:       providers.RoleTool,
				Content:    invocation.Output,
				ToolCallID: call.ID,
			}
			messages = append(messages, toolMsg)
			result.Messages = append(result.Messages, toolMsg)
		}
	}

	logger.Warn("agent exceeded maximum turns", zap.Int("max_turns", r.config.MaxTurns))
	return nil, services.ErrMaxTurnsExceeded.Wrap(nil).WithDetail("max_turns", r.config.MaxTurns)
}

// invoke executes one tool call. Failures are reported to the model as the
// tool output and never abort the run.
func (r *Runner) invoke(ctx context.Context, logger *zap.Logger, call providers.ToolCall) ToolInvocation {
	start := time.Now()
	invocation := ToolInvocation{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
	}

	tool, ok := r.tools.Lookup(call.Name)
	if !ok {
		logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		invocation.Output = "Error: unknown tool " + call.Name
		invocation.Failed = true
		invocation.Duration = time.Since(start)
		return invocation
	}

	output, err := tool.Call(ctx, call.Arguments)
	invocation.Duration = time.Since(start)
	if err != nil {
		logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.Error(err))
		invocation.Output = "Error: " + err.Error()
		invocation.Failed = true
		return invocation
	}

	logger.Info("tool call completed",
		zap.String("tool", call.Name),
		zap.String("tool_call_id", call.ID),
		zap.Int("output_bytes", len(output)),
		zap.Duration("duration", invocation.Duration))

	invocation.Output = output
	return invocation
}

func classifyProviderError(err error) error {
	if providers.IsRateLimited(err) {
		return services.ErrRateLimitExceeded.Wrap(err)
	}
	return services.ErrProviderError.Wrap(err)
}

var _ Agent = (*Runner)(nil)
