package vectorstore

import "context"

// VectorStore is a technology-agnostic interface for vector similarity search
// against a single collection.
type VectorStore interface {
	// Search returns at most limit matches for vector, in backend relevance order.
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the vector store.
	Close() error
}

// SearchResult represents a single match from vector similarity search.
type SearchResult struct {
	// ID is the point identifier as a string (UUID or number).
	ID string

	// Score is the similarity score as returned by the backend, unnormalized.
	Score float32

	// Payload holds the stored payload converted to plain Go values.
	Payload map[string]any
}
