package domain

import (
	"fmt"
	"time"
)

type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateArchived LifecycleState = "archived"
	StateDeleted  LifecycleState = "deleted"
)

func (s LifecycleState) Valid() bool {
	return s == StateActive || s == StateArchived || s == StateDeleted
}

// Terminal reports whether no further action may ever apply.
func (s LifecycleState) Terminal() bool { return s == StateDeleted }

// Lifecycle is the lifecycle state plus who moved it there and why.
type Lifecycle struct {
	State          LifecycleState `json:"state" enum:"active,archived,deleted"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
	ArchivedBy     string         `json:"archived_by,omitempty"`
	ArchiveReason  string         `json:"archive_reason,omitempty"`
	RestoredAt     *time.Time     `json:"restored_at,omitempty"`
	RestoredBy     string         `json:"restored_by,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy      string         `json:"deleted_by,omitempty"`
	DeletionReason string         `json:"deletion_reason,omitempty"`
}

// InvalidTransitionError is returned when a lifecycle action does not apply to the current state.
type InvalidTransitionError struct {
	From   LifecycleState
	Action Action
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition: %s from %s", e.Action, e.From)
}

// NextLifecycle returns the state reached by applying a lifecycle action.
func NextLifecycle(from LifecycleState, action Action) (LifecycleState, error) {
	switch {
	case from == StateActive && action == ActionArchive:
		return StateArchived, nil
	case from == StateArchived && action == ActionRestore:
		return StateActive, nil
	case from == StateArchived && action == ActionDelete:
		return StateDeleted, nil
	}
	return from, InvalidTransitionError{From: from, Action: action}
}

// Apply moves the lifecycle and records the actor, time and optional reason.
func (l Lifecycle) Apply(action Action, actorID, reason string, at time.Time) (Lifecycle, error) {
	next, err := NextLifecycle(l.State, action)
	if err != nil {
		return l, err
	}
	at = at.UTC()
	out := l
	out.State = next
	switch action {
	case ActionArchive:
		out.ArchivedAt, out.ArchivedBy, out.ArchiveReason = &at, actorID, reason
	case ActionRestore:
		out.RestoredAt, out.RestoredBy = &at, actorID
		out.ArchivedAt, out.ArchivedBy, out.ArchiveReason = nil, "", ""
	case ActionDelete:
		out.DeletedAt, out.DeletedBy, out.DeletionReason = &at, actorID, reason
	}
	return out, nil
}
