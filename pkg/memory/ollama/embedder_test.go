// SPDX-License-Identifier: Apache-2.0
package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerrors "github.com/jllopis/agentnet/pkg/errors"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, "launch notes", req.Input)
		assert.True(t, req.Truncate)
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.5,0.25,-1]]}`))
	}))
	defer srv.Close()

	vec, err := NewEmbedder(srv.URL+"/", "").Embed(context.Background(), "launch notes")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, -1}, vec)
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		recoverable bool
	}{
		{"server error", http.StatusInternalServerError, "boom", true},
		{"throttled", http.StatusTooManyRequests, "slow down", true},
		{"unknown model", http.StatusNotFound, `{"error":"model not found"}`, false},
		{"empty vector", http.StatusOK, `{"embeddings":[]}`, false},
		{"bad json", http.StatusOK, `{"embeddings":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewEmbedder(srv.URL, "m").Embed(context.Background(), "x")
			require.Error(t, err)
			assert.True(t, aerrors.HasCode(err, aerrors.CodeMemoryError))
			assert.Equal(t, tt.recoverable, aerrors.As(err).Recoverable)
		})
	}
}
