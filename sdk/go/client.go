package portalsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ops portal HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID and Role are sent as X-Actor-Id / X-Role when no token is set.
	ActorID    string
	Role       string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Entity is the API entity model. Data stays raw; its shape depends on Kind.
type Entity struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Lifecycle Lifecycle       `json:"lifecycle"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type Lifecycle struct {
	State      string `json:"state"`
	ArchivedAt string `json:"archived_at,omitempty"`
	ArchivedBy string `json:"archived_by,omitempty"`
	DeletedAt  string `json:"deleted_at,omitempty"`
	DeletedBy  string `json:"deleted_by,omitempty"`
}

// Action describes one button the caller may press.
type Action struct {
	Key            string         `json:"key"`
	Label          string         `json:"label"`
	Variant        string         `json:"variant"`
	Confirm        string         `json:"confirm,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CloseOnSuccess bool           `json:"closeOnSuccess"`
}

type Region struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Stage struct {
	Role       string `json:"role"`
	Status     string `json:"status"`
	ActorID    string `json:"actor_id,omitempty"`
	Actionable bool   `json:"actionable"`
	Current    bool   `json:"current"`
}

// View is what a hub renders for one entity.
type View struct {
	Entity   Entity   `json:"entity"`
	Actions  []Action `json:"actions"`
	Sections []Region `json:"sections"`
	Tabs     []Region `json:"tabs"`
	Chain    []Stage  `json:"chain,omitempty"`
}

// Action returns the offered action with key, if any.
func (v View) Action(key string) (Action, bool) {
	for _, a := range v.Actions {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}

// ActionResult reports how a submitted action ended. A declined action
// echoes the confirmation or prompt it still needs.
type ActionResult struct {
	Outcome string `json:"outcome"`
	Confirm string `json:"confirm,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	View    *View  `json:"view,omitempty"`
}

type Permissions struct {
	EntityID string   `json:"entity_id"`
	Kind     string   `json:"kind"`
	Role     string   `json:"role"`
	Actions  []string `json:"actions"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateEntity creates an entity of kind with the given data.
func (c *Client) CreateEntity(ctx context.Context, kind, id string, data any) (Entity, error) {
	body := map[string]any{
		"kind": kind,
		"data": data,
	}
	if id != "" {
		body["id"] = id
	}
	var resp Entity
	err := c.do(ctx, http.MethodPost, "entities", body, &resp)
	return resp, err
}

// ListEntities returns the entities of kind the caller can view.
func (c *Client) ListEntities(ctx context.Context, kind string) ([]Entity, error) {
	endpoint := "entities"
	if kind != "" {
		endpoint += "?kind=" + url.QueryEscape(kind)
	}
	var resp struct {
		Items []Entity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// View fetches the entity view: offered actions, visible regions and chain.
func (c *Client) View(ctx context.Context, kind, id string) (View, error) {
	var resp View
	err := c.do(ctx, http.MethodGet, entityPath(kind, id, ""), nil, &resp)
	return resp, err
}

// Permissions lists the actions the caller's role is allowed on the entity.
func (c *Client) Permissions(ctx context.Context, kind, id string) (Permissions, error) {
	var resp Permissions
	err := c.do(ctx, http.MethodGet, entityPath(kind, id, "permissions"), nil, &resp)
	return resp, err
}

// Act submits an action. confirmed and notes answer the action's questions.
func (c *Client) Act(ctx context.Context, kind, id, key string, confirmed bool, notes string) (ActionResult, error) {
	body := map[string]any{}
	if confirmed {
		body["confirmed"] = true
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp ActionResult
	err := c.do(ctx, http.MethodPost, entityPath(kind, id, "actions/"+url.PathEscape(key)), body, &resp)
	return resp, err
}

// Events returns recent events for an entity.
func (c *Client) Events(ctx context.Context, kind, id string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, kind, id, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing for an entity, newest first.
func (c *Client) EventsPage(ctx context.Context, kind, id string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := entityPath(kind, id, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin exchanges an identity for a token on servers started with
// --dev-login, and keeps it for later calls.
func (c *Client) DevLogin(ctx context.Context, actorID, role string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"actor_id": actorID, "role": role}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
		req.Header.Set("X-Role", c.Role)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func entityPath(kind, id, rest string) string {
	p := fmt.Sprintf("entities/%s/%s", url.PathEscape(kind), url.PathEscape(id))
	if rest != "" {
		p += "/" + rest
	}
	return p
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
