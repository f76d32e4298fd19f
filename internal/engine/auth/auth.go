package auth

import (
	"errors"
	"fmt"

	"opsportal/internal/domain"
	"opsportal/internal/policy"
)

// ForbiddenError indicates the caller's role may not perform the action.
type ForbiddenError struct {
	Action domain.Action
	Kind   domain.EntityKind
	Role   domain.Role
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s this %s", e.Role, e.Action, e.Kind)
}

var ErrNoIdentity = errors.New("actor id and role are required")

// CheckIdentity rejects callers without an id or with an unknown role.
func CheckIdentity(id domain.Identity) error {
	if id.ActorID == "" || !id.Role.Valid() {
		return ErrNoIdentity
	}
	return nil
}

// Require re-runs the permission policy against a freshly loaded snapshot.
func Require(e domain.Entity, action domain.Action, id domain.Identity) error {
	if err := CheckIdentity(id); err != nil {
		return err
	}
	if !policy.Can(e.Kind, action, id.Role, policy.For(&e, id.ActorID)) {
		return ForbiddenError{Action: action, Kind: e.Kind, Role: id.Role}
	}
	return nil
}

// Permissions lists what the caller may do on e, view included when allowed.
func Permissions(e domain.Entity, id domain.Identity) []domain.Action {
	ctx := policy.For(&e, id.ActorID)
	var out []domain.Action
	if policy.Can(e.Kind, domain.ActionView, id.Role, ctx) {
		out = append(out, domain.ActionView)
	}
	return append(out, policy.AvailableActions(e.Kind, id.Role, ctx)...)
}
