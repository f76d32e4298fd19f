package policy

import (
	"strings"

	"opsportal/internal/domain"
)

func canOrder(action domain.Action, role domain.Role, ctx Context) bool {
	switch role {
	case domain.RoleManager:
		return action == domain.ActionAccept || action == domain.ActionReject || action == domain.ActionCreateService
	case domain.RoleContractor:
		return action == domain.ActionAccept || action == domain.ActionReject
	case domain.RoleCustomer:
		return action == domain.ActionCancel
	case domain.RoleWarehouse:
		if action != domain.ActionAccept && action != domain.ActionReject {
			return false
		}
		return ctx.status() == domain.StatusPendingWarehouse && IsAssignedWarehouse(ctx.Entity, ctx.ViewerID)
	case domain.RoleCrew:
		if action != domain.ActionCancel {
			return false
		}
		return strings.Contains(ctx.status(), "pending") && IsCrewOwner(ctx.Entity, ctx.ViewerID)
	}
	return false
}

// IsAssignedWarehouse checks the three places an order names its warehouse.
// Any one of them matching is enough.
func IsAssignedWarehouse(e *domain.Entity, viewerID string) bool {
	if e == nil {
		return false
	}
	order, ok := e.Order()
	if !ok {
		return false
	}
	return sameOwner(order.FulfilledByID, viewerID) ||
		sameOwner(order.AssignedWarehouse, viewerID) ||
		sameOwner(order.Metadata.WarehouseID, viewerID)
}

// IsCrewOwner reports whether the viewer raised the order as crew.
func IsCrewOwner(e *domain.Entity, viewerID string) bool {
	if e == nil {
		return false
	}
	order, ok := e.Order()
	if !ok {
		return false
	}
	return sameOwner(order.Metadata.CrewID, viewerID) || sameOwner(order.CreatorID, viewerID)
}

func sameOwner(field, viewerID string) bool {
	field = strings.TrimSpace(field)
	return field != "" && field == strings.TrimSpace(viewerID)
}
