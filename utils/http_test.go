package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"answer": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["answer"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}

	tests := []struct {
		name      string
		body      string
		wantQuery string
		wantErr   string
	}{
		{name: "valid body", body: `{"query":"What is ROS 2?"}`, wantQuery: "What is ROS 2?"},
		{name: "empty body", body: ``, wantErr: ErrEmptyBody.Error()},
		{name: "malformed body", body: `{"query":`, wantErr: "invalid JSON"},
		{name: "wrong type", body: `{"query":42}`, wantErr: "invalid JSON"},
		{name: "oversized body", body: `{"query":"` + strings.Repeat("a", MaxRequestBodyBytes) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))

			var got payload
			err := DecodeJSON(w, r, &got)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got.Query)
		})
	}
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]interface{}{"query": "query is required"}

	err := WriteBadRequest(w, "Query cannot be empty", details)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	err = json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Equal(t, "bad_request", response.Error)
	assert.Equal(t, "Query cannot be empty", response.Message)
	assert.Equal(t, "query is required", response.Details["query"])
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteTooManyRequests(w, "", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response ErrorResponse
	err = json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Equal(t, "rate_limit_exceeded", response.Error)
	assert.Equal(t, "Rate limit exceeded", response.Message)
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteInternalServerError(w, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	err = json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Equal(t, "internal_error", response.Error)
	assert.Equal(t, "Internal server error", response.Message)
}
