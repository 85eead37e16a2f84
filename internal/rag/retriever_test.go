package rag

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/textbook-rag/internal/vectorstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockSearcher is a mock implementation of Searcher
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	args := m.Called(ctx, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SearchResult), args.Error(1)
}

func TestRetriever_Search_BlankQuery(t *testing.T) {
	for _, query := range []string{"", " ", "\t\n", "   \r\n  "} {
		t.Run(strconv.Quote(query), func(t *testing.T) {
			embedder := new(MockEmbedder)
			searcher := new(MockSearcher)
			r := NewRetriever(embedder, searcher, zap.NewNop())

			records := r.Search(context.Background(), query, 5)

			assert.NotNil(t, records)
			assert.Empty(t, records)
			embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
			searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRetriever_Search_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRetriever(embedder, searcher, zap.New(core))

	embedder.On("EmbedQuery", mock.Anything, "What is a degree of freedom?").
		Return(nil, errors.New("401 unauthenticated"))

	records := r.Search(context.Background(), "What is a degree of freedom?", 5)

	assert.NotNil(t, records)
	assert.Empty(t, records)
	embedder.AssertExpectations(t)
	searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)

	assertFailureLogged(t, logs, "embedding failed")
}

// assertFailureLogged checks for exactly one info line for the call followed by one error line
func assertFailureLogged(t *testing.T, logs *observer.ObservedLogs, wantError string) {
	t.Helper()

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "searching book content", entries[0].Message)
	assert.Equal(t, "rag", entries[0].LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, wantError, entries[1].Message)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRetriever_Search_SearchFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRetriever(embedder, searcher, zap.New(core))

	vec := []float32{0.1, 0.2}
	embedder.On("EmbedQuery", mock.Anything, "sensors").Return(vec, nil)
	searcher.On("Search", mock.Anything, vec, 3).Return(nil, errors.New("connection refused"))

	records := r.Search(context.Background(), "sensors", 3)

	assert.NotNil(t, records)
	assert.Empty(t, records)
	embedder.AssertExpectations(t)
	searcher.AssertExpectations(t)

	assertFailureLogged(t, logs, "qdrant search failed")
}

func TestRetriever_Search_MapsMatchesInOrder(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	r := NewRetriever(embedder, searcher, zap.NewNop())

	vec := []float32{0.3, 0.4, 0.5}
	matches := []vectorstore.SearchResult{
		{ID: "1", Score: 0.42, Payload: map[string]any{"text": "low", "title": "B", "heading": "h2", "slug": "b"}},
		{ID: "2", Score: 0.87, Payload: map[string]any{"text": "high", "title": "A", "heading": "h1", "slug": "a"}},
		{ID: "3", Score: 0.10, Payload: map[string]any{"text": "lowest", "title": "C", "heading": "h3", "slug": "c"}},
	}
	embedder.On("EmbedQuery", mock.Anything, "actuators").Return(vec, nil)
	searcher.On("Search", mock.Anything, vec, 3).Return(matches, nil)

	records := r.Search(context.Background(), "actuators", 3)

	require.Len(t, records, 3)
	// backend order is kept even though it is not sorted by score
	assert.Equal(t, "low", records[0].Text)
	assert.Equal(t, "high", records[1].Text)
	assert.Equal(t, "lowest", records[2].Text)
	assert.InDelta(t, 0.42, records[0].Score, 1e-6)
	assert.InDelta(t, 0.87, records[1].Score, 1e-6)
	assert.InDelta(t, 0.10, records[2].Score, 1e-6)
	assert.Equal(t, "a", records[1].Slug)
}

func TestRetriever_Search_DefaultTopK(t *testing.T) {
	for _, topK := range []int{0, -3} {
		embedder := new(MockEmbedder)
		searcher := new(MockSearcher)
		r := NewRetriever(embedder, searcher, zap.NewNop())

		vec := []float32{1}
		embedder.On("EmbedQuery", mock.Anything, "q").Return(vec, nil)
		searcher.On("Search", mock.Anything, vec, DefaultTopK).Return([]vectorstore.SearchResult{}, nil)

		records := r.Search(context.Background(), "q", topK)

		assert.Empty(t, records)
		searcher.AssertExpectations(t)
	}
}

func TestRetriever_Search_PayloadDefaults(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    ContentRecord
	}{
		{
			name:    "nil payload",
			payload: nil,
			want:    ContentRecord{Text: "", Title: UnknownTitle, Heading: UnknownHeading, Slug: "", Score: 0.5},
		},
		{
			name:    "missing title only",
			payload: map[string]any{"text": "body", "heading": "Intro", "slug": "intro"},
			want:    ContentRecord{Text: "body", Title: UnknownTitle, Heading: "Intro", Slug: "intro", Score: 0.5},
		},
		{
			name:    "null values use placeholders",
			payload: map[string]any{"text": nil, "title": nil, "heading": nil, "slug": nil},
			want:    ContentRecord{Text: "", Title: UnknownTitle, Heading: UnknownHeading, Slug: "", Score: 0.5},
		},
		{
			name:    "present empty strings are kept",
			payload: map[string]any{"text": "", "title": "", "heading": ""},
			want:    ContentRecord{Text: "", Title: "", Heading: "", Slug: "", Score: 0.5},
		},
		{
			name:    "non-string values are stringified",
			payload: map[string]any{"text": int64(7), "title": true, "heading": 1.5},
			want:    ContentRecord{Text: "7", Title: "true", Heading: "1.5", Slug: "", Score: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbedder)
			searcher := new(MockSearcher)
			r := NewRetriever(embedder, searcher, nil)

			vec := []float32{1}
			embedder.On("EmbedQuery", mock.Anything, "q").Return(vec, nil)
			searcher.On("Search", mock.Anything, vec, 1).
				Return([]vectorstore.SearchResult{{Score: 0.5, Payload: tt.payload}}, nil)

			records := r.Search(context.Background(), "q", 1)

			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0])
		})
	}
}
