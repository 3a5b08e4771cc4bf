// Package secrets resolves named credentials from a prioritized source
// chain and caches them for the process lifetime. It is deliberately the
// only place that reads LLM_API_KEY and SIGNING_KEY from the environment
// (see internal/config's doc comment).
package secrets

import (
	"context"
	"os"
	"strings"
	"sync"

	"selinfer/internal/sel"
)

// Source yields a named secret's value, or ("", false) if it does not carry
// that secret (a missing value is not an error; a backend outage is).
type Source interface {
	Name() string
	Lookup(ctx context.Context, name string) (value string, ok bool, err error)
}

// EnvSource resolves a secret from a process environment variable.
type EnvSource struct{}

func (EnvSource) Name() string { return "env" }

func (EnvSource) Lookup(_ context.Context, name string) (string, bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// ManagedSource resolves a secret from a cloud-provider-specific managed
// secret service. Lookup is a stub in this deployment: the managed backend
// endpoint is not configured, so it always reports a miss rather than
// erroring, letting the chain fall through to EnvSource.
type ManagedSource struct {
	Identifier string // cloud-provider-specific secret identifier prefix
}

func (m ManagedSource) Name() string { return "managed" }

func (m ManagedSource) Lookup(_ context.Context, _ string) (string, bool, error) {
	if m.Identifier == "" {
		return "", false, nil
	}
	return "", false, nil
}

// Resolver tries sources in priority order and caches the first non-empty
// value found for each name, for the lifetime of the process.
type Resolver struct {
	sources []Source

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver builds a Resolver trying the managed secret service first,
// then the process environment, matching the priority order in spec §4.1.
func NewResolver(managed ManagedSource) *Resolver {
	return &Resolver{
		sources: []Source{managed, EnvSource{}},
		cache:   make(map[string]string),
	}
}

// Resolve returns the named secret's value, trying each source in order
// until one yields a non-empty value. Subsequent calls return the cached
// value without re-querying sources.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	if v, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	for _, src := range r.sources {
		v, ok, err := src.Lookup(ctx, name)
		if err != nil {
			return "", &sel.UpstreamUnavailable{Upstream: "secret:" + src.Name(), Cause: err}
		}
		if ok {
			r.mu.Lock()
			r.cache[name] = v
			r.mu.Unlock()
			return v, nil
		}
	}
	return "", nil
}

// Invalidate drops the cached value for name, forcing the next Resolve to
// re-query sources.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, name)
}

// RequireAtStartup resolves name and aborts with a FatalConfigError if it is
// absent from every source. Used during process startup for the LLM key and
// the signing key before any request is served.
func (r *Resolver) RequireAtStartup(ctx context.Context, name string) (string, error) {
	v, err := r.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", &sel.FatalConfigError{Name: name, Reason: "not found in any secret source"}
	}
	return v, nil
}
