package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"tally/internal/logger"
	"tally/internal/repo"
)

type AuthConfig struct {
	JWTSecret string
	// AllowActorHeader accepts a bare X-Actor-Id header as identity. Local
	// development only.
	AllowActorHeader bool
	// DevLogin exposes POST /auth/dev/login, which mints tokens for any actor.
	DevLogin bool
	TokenTTL time.Duration
}

type Principal struct {
	ActorID string
	Roles   []string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, err := principalFromRequest(ctx)
	if err != nil {
		return "", err
	}
	return p.ActorID, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: claims.Subject, Roles: claims.Roles, Source: "jwt"}, nil
}

func signDevToken(secret, actorID string, roles []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	apiKey, err := r.ActorForKey(ctx, key)
	if err != nil {
		return Principal{}, err
	}
	if apiKey.ActorID == "" {
		return Principal{}, errors.New("api key missing actor")
	}
	return Principal{ActorID: apiKey.ActorID, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo, log *logger.Logger) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "openapi.json"):   true,
		path.Join(basePath, "auth/dev/login"): cfg.DevLogin,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			actorHeader := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					log.Debug("jwt rejected", "path", req.URL.Path, "err", err)
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					log.Debug("api key rejected", "path", req.URL.Path, "err", err)
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if actorHeader != "" && cfg.AllowActorHeader {
				log.Warn("unauthenticated X-Actor-Id header accepted", "actor_id", actorHeader)
				ctx := withPrincipal(req.Context(), Principal{ActorID: actorHeader, Source: "actor_header"})
				next.ServeHTTP(w, req.WithContext(ctx))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
