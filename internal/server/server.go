package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/auth"
	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/ledger"
	"tally/internal/logger"
	"tally/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      *logger.Logger
	// Gatherer, when set, is served at /metrics.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_action"`
	Message string         `json:"message" example:"connect: duplicate action: already recorded as 6f1c"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"existing_id\":\"6f1c\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// out wraps a response body for huma.
type out[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *out[T] { return &out[T]{Body: v} }

// New returns an HTTP handler exposing the tally API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = cfg.Engine.Log
	}
	if log == nil {
		log = logger.Nop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, log))
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	hcfg := huma.DefaultConfig("Tally API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerConnections(group, cfg.Engine)
	registerEndorsements(group, cfg.Engine)
	registerMessages(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerPolicies(group, cfg.Engine)
	registerParticipation(group, cfg.Engine)
	registerOrgs(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAdmin(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []interface{}{
				"method", r.Method, "path", r.URL.Path, "status", status,
				"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				log.Error("request failed", kv...)
				return
			}
			log.Debug("request", kv...)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps a command error onto the envelope: duplicates and state
// rejections are conflicts, bad transitions are unprocessable, a busy store
// is unavailable.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrDuplicateAction):
		var details map[string]any
		if existing, ok := domain.ExistingHolder(err); ok && existing != "" {
			details = map[string]any{"existing_id": existing}
		}
		return newAPIError(http.StatusConflict, "duplicate_action", msg, details)
	case errors.Is(err, domain.ErrNotAcceptingInput):
		return newAPIError(http.StatusConflict, "not_accepting_input", msg, nil)
	case errors.Is(err, domain.ErrInvalidState):
		return newAPIError(http.StatusConflict, "invalid_state", msg, nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", msg, nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, domain.ErrUnauthorized):
		return newAPIError(http.StatusForbidden, "forbidden", msg, nil)
	case errors.Is(err, domain.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case ledger.Retryable(err), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", "store busy, retry", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// commandErrors is the error set shared by every ledger command route.
var commandErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

func requireModerator(ctx context.Context, e engine.Engine) (string, error) {
	actor, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return "", authErr
	}
	if err := e.Auth.RequireModerator(ctx, actor); err != nil {
		return "", err
	}
	return actor, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Tally API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[WhoAmIResponse], error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles, err := e.Repo.ActorRoles(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		roles = append(roles, principal.Roles...)
		mod, err := e.Auth.IsModerator(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(WhoAmIResponse{
			ActorID:   principal.ActorID,
			Roles:     nonNilSlice(roles),
			Moderator: mod,
			Source:    principal.Source,
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Mint an API key for the current actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*out[APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(apiKeyResponse(key, raw)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List the current actor's API keys",
	}, func(ctx context.Context, _ *struct{}) (*out[[]APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			items = append(items, apiKeyResponse(k, ""))
		}
		return reply(items), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List ledger journal entries, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type          string `query:"type"`
		AggregateKind string `query:"aggregate_kind" enum:"edge,fundable,votable,endorsement,application,participation,conversation"`
		AggregateID   string `query:"aggregate_id"`
		ActorID       string `query:"actor_id"`
		Limit         int    `query:"limit" default:"50"`
		Cursor        string `query:"cursor"`
	}) (*out[paginatedEvents], error) {
		if _, err := requireModerator(ctx, e); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Journal(ctx, repo.EventFilter{
			Type:          input.Type,
			AggregateKind: input.AggregateKind,
			AggregateID:   input.AggregateID,
			ActorID:       input.ActorID,
			Cursor:        cursorID,
			Limit:         limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return reply(resp), nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/admin/roles/grant",
		Summary:     "Grant a platform role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body RoleRequest `json:"body"`
	}) (*struct{}, error) {
		if _, err := requireModerator(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if err := e.GrantRole(ctx, input.Body.ActorID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/admin/roles/revoke",
		Summary:     "Revoke a platform role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body RoleRequest `json:"body"`
	}) (*struct{}, error) {
		if _, err := requireModerator(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if err := e.RevokeRole(ctx, input.Body.ActorID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*out[DevLoginResponse], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, authCfg.TokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(DevLoginResponse{Token: token}), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
