package handlers

import (
	"net/http"

	"github.com/upb/textbook-rag/internal/observability"
	"github.com/upb/textbook-rag/middleware"
	"github.com/upb/textbook-rag/services"
	"github.com/upb/textbook-rag/services/agent"
	"github.com/upb/textbook-rag/utils"
	"go.uber.org/zap"
)

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Query string `json:"query" validate:"notblank"`
}

// ChatResponse is the body returned by POST /chat
type ChatResponse struct {
	Answer string `json:"answer"`
}

// ChatHandler handles questions about the textbook
type ChatHandler struct {
	agent  agent.Agent
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(agent agent.Agent, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		agent:  agent,
		logger: logger,
	}
}

// HandleChat handles POST /chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)

	var req ChatRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid chat request body", zap.Error(err))
		HandleServiceError(w, services.ErrInvalidInput.Wrap(err).WithDetail("error", err.Error()), logger)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		domainErr := services.ErrEmptyQuery.Wrap(err)
		for field, message := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, message)
		}
		HandleServiceError(w, domainErr, logger)
		return
	}

	logger.Info("chat request received", zap.Int("query_length", len(req.Query)))

	result, err := h.agent.Run(ctx, req.Query)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("chat request answered",
		zap.String("run_id", result.RunID),
		zap.Int("turns", result.Turns),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("agent_duration", result.Duration),
	)

	if err := utils.WriteJSON(w, http.StatusOK, ChatResponse{Answer: result.Answer()}); err != nil {
		logger.Error("failed to write chat response",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
}
