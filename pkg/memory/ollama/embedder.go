// SPDX-License-Identifier: Apache-2.0

// Package ollama embeds memory content through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/memory"
)

// DefaultModel is used when no embedding model is configured.
const DefaultModel = "nomic-embed-text"

// Embedder calls /api/embed. Input longer than the model's context is
// truncated server side rather than rejected.
type Embedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewEmbedder returns an embedder for the server at baseURL. Empty values
// select the local server and DefaultModel.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/embed",
		model:    model,
		client:   &http.Client{Timeout: time.Minute},
	}
}

type embedRequest struct {
	Model    string `json:"model"`
	Input    string `json:"input"`
	Truncate bool   `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the vector for text. Failures are MEMORY_ERRORs; only
// transport errors, throttling and server faults are recoverable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.fail("embedding call failed", err).WithRecoverable(ctx.Err() == nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, e.fail(fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)), nil).
			WithContext("status", resp.StatusCode).
			WithRecoverable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, e.fail("decode embed response", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, e.fail("ollama returned an empty embedding", nil)
	}
	return out.Embeddings[0], nil
}

func (e *Embedder) fail(msg string, cause error) *errors.Error {
	return errors.New(errors.CodeMemoryError, msg, cause).WithContext("model", e.model)
}

var _ memory.Embedder = (*Embedder)(nil)
