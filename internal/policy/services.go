package policy

import "opsportal/internal/domain"

func canService(action domain.Action, role domain.Role, ctx Context) bool {
	status := ctx.status()
	switch role {
	case domain.RoleManager:
		switch action {
		case domain.ActionStart:
			return status == domain.StatusPending
		case domain.ActionComplete:
			return status == domain.StatusInProgress
		case domain.ActionAssignCrew:
			return true
		}
	case domain.RoleCrew:
		return action == domain.ActionComplete && status == domain.StatusInProgress
	}
	return false
}
