package preprocess

import (
	"context"
	"strings"

	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// AuthPreprocessor enforces a bearer token against a static allow-list,
// grounded on the Authorization-header bearer extraction pattern common
// across the pack's proxy gateways (e.g. nulpointcorp-llm-gateway's
// extractClientAPIKey). It is deliberately simple: spec.md's Non-goals
// exclude "an authorization policy language", so this is a single static
// check, not a pluggable policy engine.
type AuthPreprocessor struct {
	allowedKeys map[string]bool
}

func NewAuthPreprocessor(allowedKeys []string) *AuthPreprocessor {
	set := make(map[string]bool, len(allowedKeys))
	for _, k := range allowedKeys {
		set[k] = true
	}
	return &AuthPreprocessor{allowedKeys: set}
}

func (p *AuthPreprocessor) Name() string { return "auth" }

func (p *AuthPreprocessor) Process(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*ShortCircuit, error) {
	if len(p.allowedKeys) == 0 {
		return nil, nil
	}
	token := bearerToken(rc.Headers.Get("Authorization"))
	if token == "" || !p.allowedKeys[token] {
		return &ShortCircuit{Status: 401, Body: []byte(`{"error":"unauthorized"}`)}, nil
	}
	return nil, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
