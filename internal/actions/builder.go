// Package actions turns permission decisions into ordered action descriptors,
// one adapter per entity kind.
package actions

import (
	"opsportal/internal/domain"
	"opsportal/internal/policy"
)

// Context is the input of a build pass. Entity is read, never written.
type Context struct {
	Role     domain.Role
	State    domain.LifecycleState
	EntityID string
	Kind     domain.EntityKind
	Entity   *domain.Entity
	ViewerID string
}

// FromEntity fills a context from a snapshot and the caller identity.
func FromEntity(e *domain.Entity, id domain.Identity) Context {
	ctx := Context{Role: id.Role, ViewerID: id.ActorID, Entity: e}
	if e != nil {
		ctx.State = e.State()
		ctx.EntityID = e.ID
		ctx.Kind = e.Kind
	}
	return ctx
}

func (c Context) policy() policy.Context {
	return policy.Context{State: c.State, Entity: c.Entity, ViewerID: c.ViewerID}
}

func (c Context) can(a domain.Action) bool {
	return policy.Can(c.Kind, a, c.Role, c.policy())
}

func (c Context) state() domain.LifecycleState {
	if c.State == "" && c.Entity != nil {
		return c.Entity.State()
	}
	return c.State
}

func (c Context) status() string {
	if c.Entity == nil {
		return ""
	}
	return c.Entity.Status
}

// Builder emits descriptors in render order. Implementations must be pure.
type Builder interface {
	Descriptors(ctx Context) []domain.ActionDescriptor
}

type BuilderFunc func(ctx Context) []domain.ActionDescriptor

func (f BuilderFunc) Descriptors(ctx Context) []domain.ActionDescriptor { return f(ctx) }

// Registry maps entity kinds to their adapters.
type Registry map[domain.EntityKind]Builder

func (r Registry) Lookup(kind domain.EntityKind) (Builder, bool) {
	b, ok := r[kind]
	return b, ok && b != nil
}

// DefaultRegistry wires the built-in adapters.
func DefaultRegistry() Registry {
	return Registry{
		domain.KindOrder:    BuilderFunc(OrderDescriptors),
		domain.KindReport:   BuilderFunc(ReportDescriptors),
		domain.KindFeedback: BuilderFunc(ReportDescriptors),
		domain.KindService:  BuilderFunc(ServiceDescriptors),
	}
}

// AdminDescriptors is shared by every kind: admins only move the lifecycle.
func AdminDescriptors(ctx Context) []domain.ActionDescriptor {
	var out []domain.ActionDescriptor
	switch ctx.state() {
	case domain.StateActive:
		if ctx.can(domain.ActionArchive) {
			d := domain.NewDescriptor(string(domain.ActionArchive), "Archive", domain.VariantSecondary)
			d.Prompt = "Optional: reason for archiving"
			out = append(out, d)
		}
	case domain.StateArchived:
		if ctx.can(domain.ActionRestore) {
			out = append(out, domain.NewDescriptor(string(domain.ActionRestore), "Restore", domain.VariantPrimary))
		}
		if ctx.can(domain.ActionDelete) {
			d := domain.NewDescriptor(string(domain.ActionDelete), "Delete permanently", domain.VariantDanger)
			d.Confirm = "Permanently delete " + describe(ctx) + "? This cannot be undone."
			d.Prompt = "Optional: reason for deletion"
			out = append(out, d)
		}
	}
	return out
}

func describe(ctx Context) string {
	kind := string(ctx.Kind)
	if kind == "" {
		kind = "entity"
	}
	if ctx.EntityID == "" {
		return "this " + kind
	}
	return kind + " " + ctx.EntityID
}
