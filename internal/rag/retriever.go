package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/textbook-rag/internal/vectorstore"
	"go.uber.org/zap"
)

// Retriever embeds a query and searches the textbook collection.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	logger   *zap.Logger
}

// NewRetriever creates a new Retriever.
func NewRetriever(embedder Embedder, searcher Searcher, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		logger:   logger.Named("rag"),
	}
}

// Search returns up to topK passages relevant to query, in backend order.
// Failures never propagate: they are logged and yield an empty result.
func (r *Retriever) Search(ctx context.Context, query string, topK int) []ContentRecord {
	if strings.TrimSpace(query) == "" {
		return []ContentRecord{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	r.logger.Info("searching book content",
		zap.String("query", query),
		zap.Int("top_k", topK))

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Error("embedding failed", zap.Error(err))
		return []ContentRecord{}
	}

	matches, err := r.searcher.Search(ctx, vector, topK)
	if err != nil {
		r.logger.Error("qdrant search failed", zap.Error(err))
		return []ContentRecord{}
	}

	records := make([]ContentRecord, 0, len(matches))
	for _, match := range matches {
		records = append(records, toRecord(match))
	}
	return records
}

// toRecord maps a search match, substituting placeholders for absent fields.
func toRecord(match vectorstore.SearchResult) ContentRecord {
	return ContentRecord{
		Text:    payloadString(match.Payload, "text", ""),
		Title:   payloadString(match.Payload, "title", UnknownTitle),
		Heading: payloadString(match.Payload, "heading", UnknownHeading),
		Slug:    payloadString(match.Payload, "slug", ""),
		Score:   float64(match.Score),
	}
}

func payloadString(payload map[string]any, key, fallback string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
