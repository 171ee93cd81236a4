// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Scope is a permission a caller may hold.
type Scope string

const (
	ScopeCreate  Scope = "create"
	ScopeSubmit  Scope = "submit"
	ScopeProcess Scope = "process"
	ScopeRead    Scope = "read"
	ScopeDelete  Scope = "delete"
	// ScopeAdmin implies every other scope and bypasses ownership checks.
	ScopeAdmin Scope = "admin"
)

// AllScopes lists every non-admin scope.
func AllScopes() []Scope {
	return []Scope{ScopeCreate, ScopeSubmit, ScopeProcess, ScopeRead, ScopeDelete}
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID     string  `json:"id"`
	Scopes []Scope `json:"scopes"`
}

// SystemCaller is used by in-process maintenance such as the retention sweep.
var SystemCaller = Caller{ID: "system", Scopes: []Scope{ScopeAdmin}}

// Has reports whether c holds s.
func (c Caller) Has(s Scope) bool {
	for _, have := range c.Scopes {
		if have == s || have == ScopeAdmin {
			return true
		}
	}
	return false
}

// Admin reports whether c holds the admin scope.
func (c Caller) Admin() bool {
	for _, have := range c.Scopes {
		if have == ScopeAdmin {
			return true
		}
	}
	return false
}

// Owns reports whether c may act on a resource owned by owner.
func (c Caller) Owns(owner string) bool {
	return c.Admin() || c.ID == owner
}

type callerKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.ID != ""
}

func authorize(ctx context.Context, scope Scope) (Caller, error) {
	c, ok := CallerFrom(ctx)
	if !ok {
		return Caller{}, errors.Unauthorized(string(scope)).WithContext("reason", "no caller")
	}
	if !c.Has(scope) {
		return Caller{}, errors.Unauthorized(string(scope)).WithContext("caller", c.ID)
	}
	return c, nil
}

func checkOwner(c Caller, n Network) error {
	if c.Owns(n.Owner) {
		return nil
	}
	return errors.New(errors.CodeUnauthorized, "network belongs to another caller", nil).
		WithContext("caller", c.ID).
		WithContext("network_id", n.ID)
}
