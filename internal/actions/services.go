package actions

import "opsportal/internal/domain"

func ServiceDescriptors(ctx Context) []domain.ActionDescriptor {
	if ctx.Role == domain.RoleAdmin {
		return AdminDescriptors(ctx)
	}
	var out []domain.ActionDescriptor
	switch ctx.status() {
	case domain.StatusPending:
		if ctx.can(domain.ActionStart) {
			d := domain.NewDescriptor(string(domain.ActionStart), "Start service", domain.VariantPrimary)
			d.CloseOnSuccess = false
			out = append(out, d)
		}
	case domain.StatusInProgress:
		if ctx.can(domain.ActionComplete) {
			d := domain.NewDescriptor(string(domain.ActionComplete), "Complete service", domain.VariantPrimary)
			d.Confirm = "Mark " + describe(ctx) + " as complete?"
			out = append(out, d)
		}
	}
	if ctx.can(domain.ActionAssignCrew) {
		d := domain.NewDescriptor(string(domain.ActionAssignCrew), "Assign crew", domain.VariantSecondary)
		d.Prompt = "Crew ids, comma separated:"
		d.CloseOnSuccess = false
		out = append(out, d)
	}
	return out
}
