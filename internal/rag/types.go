package rag

import (
	"context"

	"github.com/upb/textbook-rag/internal/vectorstore"
)

const (
	// DefaultTopK is used when a caller does not ask for a specific count.
	DefaultTopK = 5

	// CollectionName is the Qdrant collection holding the textbook passages.
	CollectionName = "physical_ai_book"
)

// Placeholders substituted for payload fields missing from a stored point.
const (
	UnknownTitle   = "Unknown Chapter"
	UnknownHeading = "Section"
)

// ContentRecord is one retrieved textbook passage.
type ContentRecord struct {
	Text    string  `json:"text"`
	Title   string  `json:"title"`
	Heading string  `json:"heading"`
	Slug    string  `json:"slug"`
	Score   float64 `json:"score"`
}

// Embedder generates vector embeddings for search queries.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search against the textbook collection.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.SearchResult, error)
}
