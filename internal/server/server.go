package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"opsportal/internal/actions"
	"opsportal/internal/domain"
	"opsportal/internal/engine"
	"opsportal/internal/engine/auth"
	"opsportal/internal/gateway"
	"opsportal/internal/policy"
	"opsportal/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Gateway  *gateway.Gateway
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role customer may not accept this order"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"action\":\"accept\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the portal API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gw := cfg.Gateway
	if gw == nil {
		gw = &gateway.Gateway{Registry: actions.DefaultRegistry(), Logger: logger}
	}
	if gw.Binder == nil {
		// One binder per handler so concurrent duplicates are caught.
		gw.Binder = gateway.NewBinder(gateway.LogNotifier{Logger: logger}, logger)
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, logger))
	hcfg := huma.DefaultConfig("Ops Portal API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMe(group)
	registerStats(group, cfg.Engine)
	registerEntities(group, cfg.Engine, gw)
	registerActions(group, cfg.Engine, gw)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.AllowDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
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
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{
			"action": string(fe.Action), "kind": string(fe.Kind), "role": string(fe.Role),
		})
	}
	if errors.Is(err, auth.ErrNoIdentity) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, gateway.ErrNoAdapter) {
		return newAPIError(http.StatusNotFound, "unknown_kind", err.Error(), nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var te domain.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": string(te.From), "action": string(te.Action),
		})
	}
	var ue engine.UnsupportedActionError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusBadRequest, "unsupported_action", err.Error(), map[string]any{"key": ue.Key})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown") || strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

// pathKind resolves the {kind} path segment. Unknown kinds are a caller
// mistake and answer 404 without reaching the gateway.
func pathKind(raw string) (domain.EntityKind, error) {
	kind, ok := domain.ParseKind(raw)
	if !ok {
		return "", newAPIError(http.StatusNotFound, "unknown_kind", "unknown entity kind", map[string]any{"kind": raw})
	}
	return kind, nil
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs it once served.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", time.Since(start)))
		})
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Identity `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Identity `json:"body"`
		}{Body: who}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats/{kind}",
		Summary:     "Entity counts by status",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"order,report,feedback,service"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if who.Role != domain.RoleAdmin && who.Role != domain.RoleManager {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "stats are limited to admins and managers", nil)
		}
		counts, err := e.Repo.CountByStatus(ctx, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerEntities(api huma.API, e engine.Engine, gw *gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entities",
		Method:      http.MethodGet,
		Path:        "/entities",
		Summary:     "List entities the caller can view",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Kind     string `query:"kind" doc:"order, report, feedback or service"`
		Status   string `query:"status"`
		State    string `query:"state" doc:"active, archived or deleted"`
		ParentID string `query:"parent_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEntities `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListEntities(ctx, repo.EntityFilters{
			Kind:     input.Kind,
			Status:   input.Status,
			State:    input.State,
			ParentID: input.ParentID,
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEntities{Items: []domain.Entity{}}
		for _, ent := range items {
			if policy.Can(ent.Kind, domain.ActionView, who.Role, policy.For(&ent, who.ActorID)) {
				resp.Items = append(resp.Items, ent)
			}
		}
		return &struct {
			Body paginatedEntities `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-entity",
		Method:      http.MethodPost,
		Path:        "/entities",
		Summary:     "Create an entity",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateEntityRequest `json:"body"`
	}) (*struct {
		Body domain.Entity `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, ok := domain.ParseKind(input.Body.Kind)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown entity kind", map[string]any{"kind": input.Body.Kind})
		}
		data, err := entityData(kind, input.Body.Data)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		ent, err := e.CreateEntity(ctx, engine.CreateOptions{ID: input.Body.ID, Kind: kind, Data: data, Actor: who})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Entity `json:"body"`
		}{Body: ent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/entities/{kind}/{id}",
		Summary:     "Entity view with actions, sections, tabs and approval chain",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind"`
		ID   string `path:"id"`
	}) (*struct {
		Body *gateway.View `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		session := e.Session(who)
		kind, kindErr := pathKind(input.Kind)
		if kindErr != nil {
			return nil, kindErr
		}
		view, err := gw.Open(ctx, gateway.Collaborators{Identity: who, Fetcher: session, Executor: session}, kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if view == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "entity not found", map[string]any{"id": input.ID})
		}
		return &struct {
			Body *gateway.View `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-permissions",
		Method:      http.MethodGet,
		Path:        "/entities/{kind}/{id}/permissions",
		Summary:     "Actions the caller may perform",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind"`
		ID   string `path:"id"`
	}) (*struct {
		Body PermissionsResponse `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kindErr := pathKind(input.Kind)
		if kindErr != nil {
			return nil, kindErr
		}
		ent, err := e.Session(who).Fetch(ctx, kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if ent == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "entity not found", nil)
		}
		resp := PermissionsResponse{EntityID: ent.ID, Kind: string(ent.Kind), Role: string(who.Role), Actions: []string{}}
		for _, a := range auth.Permissions(*ent, who) {
			resp.Actions = append(resp.Actions, string(a))
		}
		return &struct {
			Body PermissionsResponse `json:"body"`
		}{Body: resp}, nil
	})
}

// requestPrompter answers the confirm and prompt steps from the request body
// and remembers what was asked so a decline can say why.
type requestPrompter struct {
	confirmed bool
	notes     string

	askedConfirm string
	askedPrompt  string
}

func (p *requestPrompter) Confirm(_ context.Context, message string) (bool, error) {
	p.askedConfirm = message
	return p.confirmed, nil
}

func (p *requestPrompter) Prompt(_ context.Context, message string) (string, error) {
	p.askedPrompt = message
	return p.notes, nil
}

func registerActions(api huma.API, e engine.Engine, gw *gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "run-action",
		Method:      http.MethodPost,
		Path:        "/entities/{kind}/{id}/actions/{key}",
		Summary:     "Run an offered action",
		Description: "Runs the action the entity view offers under this key. Actions that ask for " +
			"confirmation need confirmed=true; prompted input is read from notes. A declined " +
			"action returns outcome=declined with the question that was not answered.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Kind string        `path:"kind"`
		ID   string        `path:"id"`
		Key  string        `path:"key"`
		Body ActionRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kindErr := pathKind(input.Kind)
		if kindErr != nil {
			return nil, kindErr
		}
		session := e.Session(who)
		prompter := &requestPrompter{confirmed: input.Body.Confirmed, notes: input.Body.Notes}
		c := gateway.Collaborators{Identity: who, Fetcher: session, Executor: session, Prompter: prompter}
		view, err := gw.Open(ctx, c, kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if view == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "entity not found", map[string]any{"id": input.ID})
		}
		action, ok := view.Action(input.Key)
		if !ok {
			return nil, handleError(unavailable(*view.Entity, input.Key, who))
		}
		outcome, err := action.Run(ctx)
		switch outcome {
		case gateway.OutcomeDuplicate:
			return nil, newAPIError(http.StatusConflict, "duplicate_submission", "action already in progress", map[string]any{"key": input.Key})
		case gateway.OutcomeFailed:
			return nil, handleError(err)
		case gateway.OutcomeDeclined:
			return &struct {
				Body ActionResponse `json:"body"`
			}{Body: ActionResponse{
				Outcome: string(outcome),
				Confirm: prompter.askedConfirm,
				Prompt:  prompter.askedPrompt,
			}}, nil
		}
		// The entity may no longer be visible, e.g. after a delete.
		refreshed, err := gw.Open(ctx, gateway.Collaborators{Identity: who, Fetcher: session, Executor: session}, kind, input.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: ActionResponse{Outcome: string(outcome), View: refreshed}}, nil
	})
}

// unavailable explains why a key is not among the offered actions.
func unavailable(ent domain.Entity, key string, who domain.Identity) error {
	action, ok := actions.ActionForKey(key)
	if !ok {
		return engine.UnsupportedActionError{Key: key}
	}
	if err := auth.Require(ent, action, who); err != nil {
		return err
	}
	return engine.ConflictError{Reason: fmt.Sprintf("%s is not available on %s %s right now", key, ent.Kind, ent.ID)}
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entity-events",
		Method:      http.MethodGet,
		Path:        "/entities/{kind}/{id}/events",
		Summary:     "Entity history, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind   string `path:"kind"`
		ID     string `path:"id"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		who, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kindErr := pathKind(input.Kind)
		if kindErr != nil {
			return nil, kindErr
		}
		ent, err := e.Session(who).Fetch(ctx, kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if ent == nil || !policy.Can(ent.Kind, domain.ActionView, who.Role, policy.For(ent, who.ActorID)) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "entity not found", nil)
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
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.Kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		role, ok := domain.ParseRole(input.Body.Role)
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" || !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and a known role are required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, domain.Identity{ActorID: actor, Role: role}, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
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
