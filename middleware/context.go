package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// GetRequestIDFromContext returns the ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
