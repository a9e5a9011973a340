// Package auth provides API key authentication for gRPC services.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

// healthPrefix exempts the standard health service from authentication.
const healthPrefix = "/grpc.health.v1.Health/"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// clientKey is the context key for the authenticated client name.
const clientKey = contextKey("client")

// Authenticator checks API keys against a fixed set loaded at startup.
type Authenticator struct {
	keys   [][]byte
	logger zerolog.Logger
}

// NewAuthenticator creates an authenticator accepting any of keys.
func NewAuthenticator(keys []string, logger zerolog.Logger) (*Authenticator, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no API keys configured (set OASC_API_KEY environment variable)")
	}
	a := &Authenticator{logger: logger.With().Str("component", "auth").Logger()}
	for _, k := range keys {
		a.keys = append(a.keys, []byte(k))
	}
	return a, nil
}

// Authenticate returns the client name for apiKey. Every configured key is
// compared so timing does not reveal which one matched.
func (a *Authenticator) Authenticate(apiKey string) (string, error) {
	presented := []byte(strings.TrimSpace(apiKey))
	match := -1
	for i, k := range a.keys {
		if subtle.ConstantTimeCompare(presented, k) == 1 {
			match = i
		}
	}
	if match < 0 {
		return "", ErrInvalidKey
	}
	return fmt.Sprintf("key-%d", match), nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(MetadataKey)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		client, err := a.Authenticate(apiKeys[0])
		if err != nil {
			a.logger.Debug().Str("method", info.FullMethod).Msg("Rejected API key")
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		ctx = context.WithValue(ctx, clientKey, client)
		return handler(ctx, req)
	}
}

// ClientFromContext returns the authenticated client name, or "" if the
// request was not authenticated.
func ClientFromContext(ctx context.Context) string {
	if client, ok := ctx.Value(clientKey).(string); ok {
		return client
	}
	return ""
}
