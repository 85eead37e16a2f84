package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/upb/textbook-rag/services"
	"github.com/upb/textbook-rag/services/providers"
	"github.com/upb/textbook-rag/utils"
	"go.uber.org/zap"
)

// ServiceName identifies this API in health responses
const ServiceName = "Physical AI Agent"

// WelcomeMessage is returned by GET /
const WelcomeMessage = "Welcome to chatbot API"

const readinessTimeout = 5 * time.Second

// ReadinessProbe reports whether one dependency can serve requests
type ReadinessProbe func(ctx context.Context) error

// ProviderProbe adapts a model provider's availability check to a ReadinessProbe
func ProviderProbe(provider providers.Provider) ReadinessProbe {
	return func(ctx context.Context) error {
		if !provider.IsAvailable(ctx) {
			return services.ErrProviderUnavailable.Wrap(fmt.Errorf("%s availability check failed", provider.Name()))
		}
		return nil
	}
}

// HealthResponse represents the readiness check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	probes map[string]ReadinessProbe
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with named readiness probes
func NewHealthHandler(probes map[string]ReadinessProbe, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		logger: logger,
	}
}

// HandleRoot handles GET /
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

// HandleHealth handles GET /health
// Liveness only; dependencies are not contacted
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		if err := h.probes[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy"
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
