// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"sort"
	"strings"
)

// Provider names understood by the catalog.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Catalog is a closed set of known model identifiers mapped to the provider
// that serves them. Agent configurations are validated against it.
type Catalog struct {
	models map[string]string
}

// DefaultCatalog returns the models agentnet ships with.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string]string{
		"gpt-4o":                    ProviderOpenAI,
		"gpt-4o-mini":               ProviderOpenAI,
		"gpt-4.1":                   ProviderOpenAI,
		"gpt-4.1-mini":              ProviderOpenAI,
		"claude-3-5-sonnet-latest":  ProviderAnthropic,
		"claude-3-5-haiku-latest":   ProviderAnthropic,
		"claude-sonnet-4-20250514":  ProviderAnthropic,
		"llama3.1":                  ProviderOllama,
		"qwen2.5-coder:7b-instruct": ProviderOllama,
		"mock":                      ProviderMock,
	})
}

// NewCatalog builds a catalog from a model -> provider map.
func NewCatalog(models map[string]string) *Catalog {
	c := &Catalog{models: make(map[string]string, len(models))}
	for model, provider := range models {
		c.models[model] = strings.ToLower(provider)
	}
	return c
}

// Known reports whether model is in the catalog.
func (c *Catalog) Known(model string) bool {
	_, ok := c.models[model]
	return ok
}

// ProviderFor returns the provider serving model.
func (c *Catalog) ProviderFor(model string) (string, bool) {
	p, ok := c.models[model]
	return p, ok
}

// With returns a copy of the catalog with model registered under provider.
func (c *Catalog) With(model, provider string) *Catalog {
	next := make(map[string]string, len(c.models)+1)
	for m, p := range c.models {
		next[m] = p
	}
	next[model] = provider
	return NewCatalog(next)
}

// Models lists the known model identifiers in sorted order.
func (c *Catalog) Models() []string {
	out := make([]string, 0, len(c.models))
	for m := range c.models {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
