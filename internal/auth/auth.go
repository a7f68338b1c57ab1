// Package auth resolves bearer tokens into scoped principals.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Scopes understood by the API. A ":rw" scope implies its ":ro" counterpart.
const (
	ScopeAll      = "*"
	ScopeClickRW  = "click:rw"
	ScopeBlocksRW = "blocks:rw"
	ScopeBlocksRO = "blocks:ro"
	ScopeEventsRO = "events:ro"
	ScopeAuditRO  = "audit:ro"
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

type Principal struct {
	// Name identifies the token in logs without revealing it.
	Name   string
	Scopes map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate matches a presented bearer token against configured tokens.
// The admin key authenticates with scope "*".
func Authenticate(presented, adminKey string, tokens []TokenConfig) (Principal, bool) {
	if constantTimeEqual(presented, adminKey) {
		return Principal{
			Name:   "admin",
			Scopes: map[string]struct{}{ScopeAll: {}},
		}, true
	}

	for i, t := range tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{
				Name:   "token-" + strconv.Itoa(i),
				Scopes: normalizeScopes(t.Scopes),
			}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		if res, ok := strings.CutSuffix(s, ":rw"); ok {
			out[res+":ro"] = struct{}{}
		}
	}
	return out
}

func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}
