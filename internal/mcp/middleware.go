package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/farmsync/internal/domain/record"
)

// ErrUnknownToken is returned by TokenResolver for tokens it doesn't know.
var ErrUnknownToken = errors.New("unknown token")

// OwnerResolver resolves an owner ID from a bearer token.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, token string) (string, error)
}

// TokenResolver maps hex-encoded SHA-256 token hashes to owner IDs.
type TokenResolver map[string]string

// ResolveOwner implements OwnerResolver.
func (r TokenResolver) ResolveOwner(_ context.Context, token string) (string, error) {
	owner, ok := r[HashToken(token)]
	if !ok {
		return "", ErrUnknownToken
	}
	return owner, nil
}

// HashToken returns the form tokens are stored in configuration.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver OwnerResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}
			if resolver == nil {
				return nil, fmt.Errorf("unauthorized: no token resolver")
			}

			ownerID, err := resolver.ResolveOwner(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if ownerID == "" {
				return nil, fmt.Errorf("unauthorized: invalid bearer token")
			}

			return next(record.WithOwner(ctx, ownerID), method, req)
		}
	}
}

// noAuthMiddleware injects a default owner when auth is disabled.
func noAuthMiddleware(defaultOwner string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if defaultOwner != "" {
				ctx = record.WithOwner(ctx, defaultOwner)
			}
			return next(ctx, method, req)
		}
	}
}
