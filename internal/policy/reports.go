package policy

import (
	"strings"

	"opsportal/internal/domain"
)

func canReport(kind domain.EntityKind, action domain.Action, role domain.Role, ctx Context) bool {
	switch action {
	case domain.ActionAcknowledge:
		return canAcknowledge(kind, role, ctx)
	case domain.ActionResolve:
		if role != domain.RoleManager && role != domain.RoleWarehouse {
			return false
		}
		if ctx.status() != domain.StatusOpen {
			return false
		}
		acks, ok := acksOf(ctx.Entity)
		return ok && QuorumMet(acks)
	case domain.ActionClose:
		if ctx.status() != domain.StatusResolved {
			return false
		}
		if role == domain.RoleManager {
			return true
		}
		return ctx.Entity != nil && domain.SameID(ctx.Entity.CreatorID(), ctx.ViewerID)
	}
	return false
}

func canAcknowledge(kind domain.EntityKind, role domain.Role, ctx Context) bool {
	switch role {
	case domain.RoleCenter, domain.RoleContractor, domain.RoleCrew:
		if kind != domain.KindReport {
			return false
		}
	case domain.RoleCustomer:
		if kind != domain.KindFeedback {
			return false
		}
	case domain.RoleManager, domain.RoleWarehouse:
	default:
		return false
	}
	if ctx.status() != domain.StatusOpen {
		return false
	}
	acks, ok := acksOf(ctx.Entity)
	if !ok {
		return false
	}
	if domain.SameID(acks.CreatorID, ctx.ViewerID) {
		return false
	}
	return !HasAcknowledged(acks, ctx.ViewerID)
}

func acksOf(e *domain.Entity) (*domain.AckData, bool) {
	if e == nil {
		return nil, false
	}
	return e.Acks()
}

// HasAcknowledged compares ids trimmed and case-insensitively.
func HasAcknowledged(acks *domain.AckData, viewerID string) bool {
	if acks == nil || strings.TrimSpace(viewerID) == "" {
		return false
	}
	for _, a := range acks.Acknowledgments {
		if domain.SameID(a.UserID, viewerID) {
			return true
		}
	}
	return false
}

// QuorumMet reports whether every required acknowledger has acknowledged.
// Without a required list the acknowledgment_complete flag decides.
func QuorumMet(acks *domain.AckData) bool {
	if acks == nil {
		return false
	}
	required := nonEmpty(acks.RequiredAcknowledgers)
	if len(required) == 0 {
		return acks.AcknowledgmentComplete
	}
	for _, id := range required {
		if !HasAcknowledged(acks, id) {
			return false
		}
	}
	return true
}

// MissingAcknowledgers lists required ids that have not acknowledged yet.
func MissingAcknowledgers(acks *domain.AckData) []string {
	if acks == nil {
		return nil
	}
	var out []string
	for _, id := range nonEmpty(acks.RequiredAcknowledgers) {
		if !HasAcknowledged(acks, id) {
			out = append(out, strings.TrimSpace(id))
		}
	}
	return out
}

func nonEmpty(ids []string) []string {
	var out []string
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			out = append(out, id)
		}
	}
	return out
}
