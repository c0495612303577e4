package ponder

import (
	"context"
	"errors"
	"sync"

	"github.com/zoobzio/zyn"
)

// Provider defines the interface for generation backends.
// This matches zyn.Provider for compatibility with the zyn provider set.
type Provider interface {
	Call(ctx context.Context, messages []zyn.Message, temperature float32) (*zyn.ProviderResponse, error)
	Name() string
}

// Context key for provider.
type providerKeyType struct{}

var providerKey = providerKeyType{}

// Global provider fallback.
var (
	globalProvider   Provider
	globalProviderMu sync.RWMutex
)

// ErrNoProvider is returned when no provider can be resolved for a session.
var ErrNoProvider = errors.New("no provider configured: register a model, or set via context or global")

// SetProvider sets the global fallback provider.
// It is used when neither a model registration nor a context provider applies.
func SetProvider(p Provider) {
	globalProviderMu.Lock()
	defer globalProviderMu.Unlock()
	globalProvider = p
}

// GetProvider returns the global provider, if set.
func GetProvider() Provider {
	globalProviderMu.RLock()
	defer globalProviderMu.RUnlock()
	return globalProvider
}

// WithProvider adds a provider to the context.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey, p)
}

// ProviderFromContext retrieves the provider from context, if present.
func ProviderFromContext(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(providerKey).(Provider)
	return p, ok
}

// ResolveProvider determines which provider to use based on resolution order:
// 1. Session-level provider (passed as argument, usually a model registration)
// 2. Context provider
// 3. Global provider
// 4. Error if none found.
func ResolveProvider(ctx context.Context, sessionProvider Provider) (Provider, error) {
	if sessionProvider != nil {
		return sessionProvider, nil
	}

	if p, ok := ProviderFromContext(ctx); ok {
		return p, nil
	}

	globalProviderMu.RLock()
	p := globalProvider
	globalProviderMu.RUnlock()

	if p != nil {
		return p, nil
	}

	return nil, ErrNoProvider
}

// generatorSystemPrompt frames every loop request. The reasoning loop is a
// single-turn consumer: each request carries its own full context.
const generatorSystemPrompt = "You are an autonomous reasoning engine. " +
	"Follow the requested output format exactly; do not add commentary outside it."

// callProvider issues one single-turn generation request and returns the raw
// reply text. All structure is recovered later by the parser; the provider is
// only trusted to return text.
func callProvider(ctx context.Context, p Provider, prompt string, temperature float32) (string, zyn.TokenUsage, error) {
	messages := []zyn.Message{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "user", Content: prompt},
	}

	resp, err := p.Call(ctx, messages, temperature)
	if err != nil {
		return "", zyn.TokenUsage{}, wrapBackendError(err)
	}
	return resp.Content, resp.Usage, nil
}
