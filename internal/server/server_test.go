package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"opsportal/internal/config"
	"opsportal/internal/db"
	"opsportal/internal/domain"
	"opsportal/internal/engine"
	"opsportal/internal/migrate"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newLoggedServer(t, zap.NewNop())
}

func newLoggedServer(t *testing.T, logger *zap.Logger) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn, config.Default("test"), logger)
	handler, err := New(Config{
		Engine:   e,
		Logger:   logger,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyHeaders: true, AllowDevLogin: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func as(who domain.Identity) map[string]string {
	return map[string]string{"X-Actor-Id": who.ActorID, "X-Role": string(who.Role)}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type viewBody struct {
	Entity struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Lifecycle struct {
			State string `json:"state"`
		} `json:"lifecycle"`
	} `json:"entity"`
	Actions []domain.ActionDescriptor `json:"actions"`
	Tabs    []struct {
		ID string `json:"id"`
	} `json:"tabs"`
	Chain []struct {
		Role       string `json:"role"`
		Status     string `json:"status"`
		Actionable bool   `json:"actionable"`
	} `json:"chain"`
}

func (v viewBody) keys() []string {
	var out []string
	for _, a := range v.Actions {
		out = append(out, a.Key)
	}
	return out
}

type actionBody struct {
	Outcome string    `json:"outcome"`
	Confirm string    `json:"confirm"`
	Prompt  string    `json:"prompt"`
	View    *viewBody `json:"view"`
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

var (
	center     = domain.Identity{ActorID: "CTR-1", Role: domain.RoleCenter}
	contractor = domain.Identity{ActorID: "CON-1", Role: domain.RoleContractor}
	warehouse  = domain.Identity{ActorID: "WHS-1", Role: domain.RoleWarehouse}
	customer   = domain.Identity{ActorID: "CUS-1", Role: domain.RoleCustomer}
	admin      = domain.Identity{ActorID: "ADM-1", Role: domain.RoleAdmin}
)

func createOrder(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/entities", map[string]any{
		"kind": "order",
		"data": map[string]any{"order_type": "product", "center_id": "CTR-1", "assigned_warehouse": "WHS-1"},
	}, as(center))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(data, &ent))
	assert.Equal(t, "pending_contractor", ent.Status)
	return ent.ID
}

func act(t *testing.T, srv *httptest.Server, who domain.Identity, id, key string, body ActionRequest) (*http.Response, actionBody, []byte) {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/entities/order/"+id+"/actions/"+key, body, as(who))
	var out actionBody
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return res, out, data
}

func TestHealthIsOpenAndEverythingElseNeedsAuth(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "unauthorized", e.Error.Code)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Actor-Id": "X", "X-Role": "pilot"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestJWTIdentity(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "MGR-9", "role": "manager"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who domain.Identity
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, domain.Identity{ActorID: "MGR-9", Role: domain.RoleManager}, who)

	forged, err := SignToken("other-secret", who, 0)
	require.NoError(t, err)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestProductOrderOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/"+id, nil, as(contractor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view viewBody
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, []string{"accept", "reject"}, view.keys())
	require.Len(t, view.Chain, 3)
	assert.True(t, view.Chain[1].Actionable)

	_, out, _ := act(t, srv, contractor, id, "reject", ActionRequest{})
	assert.Equal(t, "declined", out.Outcome)
	assert.Contains(t, out.Confirm, "Are you sure you want to reject")

	_, out, _ = act(t, srv, contractor, id, "reject", ActionRequest{Confirmed: true})
	assert.Equal(t, "declined", out.Outcome, "reason is required")
	assert.Equal(t, "Please provide a reason:", out.Prompt)

	res, _, data = act(t, srv, customer, id, "accept", ActionRequest{})
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, _, data = act(t, srv, warehouse, id, "accept", ActionRequest{})
	require.Equal(t, http.StatusForbidden, res.StatusCode, "warehouse stage is not pending yet: %s", data)

	res, out, data = act(t, srv, contractor, id, "accept", ActionRequest{})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "completed", out.Outcome)
	require.NotNil(t, out.View)
	assert.Equal(t, domain.StatusPendingWarehouse, out.View.Entity.Status)
	assert.Empty(t, out.View.keys(), "contractor has nothing left to do")

	res, out, data = act(t, srv, warehouse, id, "accept", ActionRequest{})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.StatusDelivered, out.View.Entity.Status)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/"+id+"/events?limit=2", nil, as(center))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page struct {
		Items      []EventResponse `json:"items"`
		NextCursor string          `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "chain.advanced", page.Items[0].Type)
	assert.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/"+id+"/events?cursor="+page.NextCursor, nil, as(center))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "entity.created", page.Items[0].Type)
}

func TestRejectWithReasonHaltsChain(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	res, out, data := act(t, srv, contractor, id, "reject", ActionRequest{Confirmed: true, Notes: "out of stock"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "completed", out.Outcome)
	assert.Equal(t, domain.StatusRejected, out.View.Entity.Status)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/"+id+"/permissions", nil, as(customer))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, _, data = act(t, srv, customer, id, "cancel", ActionRequest{Confirmed: true})
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
}

func TestPermissionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/"+id+"/permissions", nil, as(customer))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var perms PermissionsResponse
	require.NoError(t, json.Unmarshal(data, &perms))
	assert.Equal(t, []string{"view", "cancel"}, perms.Actions)
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)
	url := srv.URL + "/v0/entities/order/" + id

	res, data := doJSON(t, http.MethodGet, url, nil, as(admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view viewBody
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, []string{"archive"}, view.keys())

	res, out, data := act(t, srv, admin, id, "archive", ActionRequest{})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "completed", out.Outcome, "archive reason is optional")
	assert.Equal(t, "archived", out.View.Entity.Lifecycle.State)
	assert.Equal(t, []string{"restore", "delete"}, out.View.keys())

	_, out, _ = act(t, srv, admin, id, "delete", ActionRequest{})
	assert.Equal(t, "declined", out.Outcome)

	res, out, data = act(t, srv, admin, id, "delete", ActionRequest{Confirmed: true, Notes: "duplicate"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "completed", out.Outcome)
	assert.Nil(t, out.View, "deleted entities are not viewable")

	res, _ = doJSON(t, http.MethodGet, url, nil, as(admin))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUnknownKindAndMissingEntity(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/entities/widget/W-1", nil, as(admin))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "unknown_kind", e.Error.Code)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/entities/order/ORD-NOPE", nil, as(admin))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUnknownKindIsNotLoggedAsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := newLoggedServer(t, zap.New(core))

	for _, path := range []string{
		"/v0/entities/widget/W-1",
		"/v0/entities/widget/W-1/permissions",
		"/v0/entities/widget/W-1/events",
	} {
		res, data := doJSON(t, http.MethodGet, srv.URL+path, nil, as(admin))
		require.Equal(t, http.StatusNotFound, res.StatusCode, path)
		var e errorBody
		require.NoError(t, json.Unmarshal(data, &e))
		assert.Equal(t, "unknown_kind", e.Error.Code, path)
	}
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/entities/widget/W-1/actions/accept", ActionRequest{}, as(admin))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestUnofferedActionIsConflictOrUnsupported(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv)

	res, _, _ := act(t, srv, contractor, id, "fly", ActionRequest{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _, data := act(t, srv, center, id, "cancel", ActionRequest{Confirmed: true})
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
}

func TestListEntitiesFiltersByViewAccess(t *testing.T) {
	srv := newTestServer(t)
	createOrder(t, srv)
	createOrder(t, srv)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/entities?kind=order", nil, as(center))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Len(t, page.Items, 2)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/stats/order", nil, as(admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var counts map[string]int
	require.NoError(t, json.Unmarshal(data, &counts))
	assert.Equal(t, 2, counts["pending_contractor"])

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/stats/order", nil, as(customer))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
