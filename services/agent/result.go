package agent

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/upb/textbook-rag/services/providers"
)

// DefaultAnswer is returned when a run produced no usable text.
const DefaultAnswer = "I'm sorry, I couldn't produce an answer from the textbook. Please try rephrasing your question."

// ToolInvocation records one tool call made during a run.
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Output    string          `json:"output"`
	Failed    bool            `json:"failed"`
	Duration  time.Duration   `json:"duration"`
}

// RunResult is the outcome of a completed agent run.
type RunResult struct {
	RunID       string              `json:"run_id"`
	Input       string              `json:"input"`
	FinalOutput string              `json:"final_output"`
	Messages    []providers.Message `json:"messages"`
	ToolCalls   []ToolInvocation    `json:"tool_calls"`
	Turns       int                 `json:"turns"`
	Usage       providers.Usage     `json:"usage"`
	Duration    time.Duration       `json:"duration"`
}

// answerSource extracts an answer from a result, reporting whether it found one.
type answerSource func(*RunResult) (string, bool)

// answerSources are tried in order by Answer.
var answerSources = []answerSource{
	fromFinalOutput,
	fromLastAssistantMessage,
}

// Answer returns the text to hand back to the caller: the final output if
// present, otherwise the last non-empty assistant message, otherwise
// DefaultAnswer.
func (r *RunResult) Answer() string {
	if r == nil {
		return DefaultAnswer
	}
	for _, source := range answerSources {
		if answer, ok := source(r); ok {
			return answer
		}
	}
	return DefaultAnswer
}

func fromFinalOutput(r *RunResult) (string, bool) {
	if strings.TrimSpace(r.FinalOutput) == "" {
		return "", false
	}
	return r.FinalOutput, true
}

func fromLastAssistantMessage(r *RunResult) (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		msg := r.Messages[i]
		if msg.Role == providers.RoleAssistant && strings.TrimSpace(msg.Content) != "" {
			return msg.Content, true
		}
	}
	return "", false
}
