// Package gateway binds action descriptors to the execution collaborator and
// runs the confirm/prompt protocol in front of it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"opsportal/internal/actions"
	"opsportal/internal/domain"
	"opsportal/internal/policy"
	"opsportal/internal/workflow"
)

// ErrNoAdapter is returned for entity kinds without a registered builder.
var ErrNoAdapter = errors.New("no action adapter registered for entity kind")

// Fetcher loads the current snapshot. An empty id yields (nil, nil).
type Fetcher interface {
	Fetch(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error)
}

// Executor performs an action. It either fully succeeds or fully fails.
type Executor interface {
	Execute(ctx context.Context, entityID, actionKey string, payload map[string]any) error
}

// Prompter asks the caller for confirmation and free-text input.
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
	Prompt(ctx context.Context, message string) (string, error)
}

type Notification struct {
	EntityID  string
	ActionKey string
	Message   string
}

// Notifier surfaces execution failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) {
	if l.Logger == nil {
		return
	}
	l.Logger.Warn("action failed", zap.String("entity_id", n.EntityID), zap.String("action", n.ActionKey), zap.String("message", n.Message))
}

// Collaborators are the per-caller pieces a view is bound to.
type Collaborators struct {
	Identity domain.Identity
	Fetcher  Fetcher
	Executor Executor
	Prompter Prompter
	Surface  *Surface
}

// View is everything a render collaborator needs for one entity.
type View struct {
	Entity      *domain.Entity            `json:"entity"`
	Descriptors []domain.ActionDescriptor `json:"actions"`
	Sections    []policy.Region           `json:"sections"`
	Tabs        []policy.Region           `json:"tabs"`
	Chain       []workflow.StageView      `json:"chain,omitempty"`

	bound []*BoundAction
}

// Actions returns the bound actions in descriptor order.
func (v *View) Actions() []*BoundAction {
	if v == nil {
		return nil
	}
	return v.bound
}

// Action finds a bound action by descriptor key.
func (v *View) Action(key string) (*BoundAction, bool) {
	if v == nil {
		return nil, false
	}
	for _, b := range v.bound {
		if b.desc.Key == key {
			return b, true
		}
	}
	return nil, false
}

// Gateway opens entity views: fetch, build descriptors, bind.
type Gateway struct {
	Registry   actions.Registry
	Binder     *Binder
	Visibility policy.Visibility
	Sections   []policy.Region
	Tabs       []policy.Region
	Logger     *zap.Logger
}

func (g *Gateway) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// Open returns the view of an entity for the caller. An empty id, a missing
// entity or a caller without view access yields a nil view and no error.
func (g *Gateway) Open(ctx context.Context, c Collaborators, kind domain.EntityKind, id string) (*View, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	builder, ok := g.Registry.Lookup(kind)
	if !ok {
		g.logger().Error("no action adapter", zap.String("kind", string(kind)), zap.String("entity_id", id))
		return nil, fmt.Errorf("%w: %q", ErrNoAdapter, kind)
	}
	if c.Fetcher == nil {
		return nil, errors.New("gateway: no fetcher configured")
	}
	entity, err := c.Fetcher.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	if !policy.Can(kind, domain.ActionView, c.Identity.Role, policy.For(entity, c.Identity.ActorID)) {
		return nil, nil
	}
	if c.Surface != nil {
		c.Surface.Open(kind, entity.ID)
	}

	descriptors := builder.Descriptors(actions.FromEntity(entity, c.Identity))
	vc := policy.VisibilityContext{Kind: kind, Role: c.Identity.Role, State: entity.State(), Entity: entity}
	view := &View{
		Entity:      entity,
		Descriptors: descriptors,
		Sections:    g.Visibility.Sections(g.sections(), vc),
		Tabs:        g.Visibility.Tabs(g.tabs(), vc),
		bound:       g.binder().Bind(entity.ID, descriptors, c),
	}
	if order, ok := entity.Order(); ok && len(order.Approvals) > 0 {
		view.Chain = workflow.ViewFor(order.Approvals, c.Identity.Role)
	}
	return view, nil
}

func (g *Gateway) binder() *Binder {
	if g.Binder == nil {
		g.Binder = NewBinder(nil, g.Logger)
	}
	return g.Binder
}

func (g *Gateway) sections() []policy.Region {
	if g.Sections == nil {
		return policy.DefaultSections()
	}
	return g.Sections
}

func (g *Gateway) tabs() []policy.Region {
	if g.Tabs == nil {
		return policy.DefaultTabs()
	}
	return g.Tabs
}
