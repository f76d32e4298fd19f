// Package policy decides which actions and display regions a caller may use.
//
// Every function here is pure and total: no I/O, no panics, and anything the
// rules do not explicitly grant is denied.
package policy

import (
	"opsportal/internal/domain"
)

// Context is the per-decision input besides kind, action and role.
type Context struct {
	State    domain.LifecycleState
	Entity   *domain.Entity
	ViewerID string
}

// For builds a context from an entity snapshot.
func For(e *domain.Entity, viewerID string) Context {
	ctx := Context{Entity: e, ViewerID: viewerID}
	if e != nil {
		ctx.State = e.State()
	}
	return ctx
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

// Can reports whether role may perform action on an entity of the given kind.
func Can(kind domain.EntityKind, action domain.Action, role domain.Role, ctx Context) bool {
	if !role.Valid() {
		return false
	}
	state := ctx.state()
	if !state.Valid() || state.Terminal() {
		return false
	}
	if action == domain.ActionView {
		return true
	}
	if role == domain.RoleAdmin {
		return canAdmin(action, state)
	}
	if state != domain.StateActive || action.Lifecycle() {
		return false
	}
	switch kind {
	case domain.KindOrder:
		return canOrder(action, role, ctx)
	case domain.KindReport, domain.KindFeedback:
		return canReport(kind, action, role, ctx)
	case domain.KindService:
		return canService(action, role, ctx)
	}
	return false
}

// canAdmin is keyed on lifecycle state only; kind and entity data do not matter.
func canAdmin(action domain.Action, state domain.LifecycleState) bool {
	switch state {
	case domain.StateActive:
		return action == domain.ActionEdit || action == domain.ActionArchive
	case domain.StateArchived:
		return action == domain.ActionRestore || action == domain.ActionDelete
	}
	return false
}

// AvailableActions lists every operational action (view excluded) the role
// may perform, in domain.OperationalActions order.
func AvailableActions(kind domain.EntityKind, role domain.Role, ctx Context) []domain.Action {
	var out []domain.Action
	for _, a := range domain.OperationalActions {
		if Can(kind, a, role, ctx) {
			out = append(out, a)
		}
	}
	return out
}
