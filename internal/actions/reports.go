package actions

import "opsportal/internal/domain"

// ReportDescriptors serves both reports and feedback.
func ReportDescriptors(ctx Context) []domain.ActionDescriptor {
	if ctx.Role == domain.RoleAdmin {
		return AdminDescriptors(ctx)
	}
	var out []domain.ActionDescriptor
	switch ctx.status() {
	case domain.StatusOpen:
		if ctx.can(domain.ActionAcknowledge) {
			d := domain.NewDescriptor(string(domain.ActionAcknowledge), "Acknowledge", domain.VariantPrimary)
			d.CloseOnSuccess = false
			out = append(out, d)
		}
		if ctx.can(domain.ActionResolve) {
			d := domain.NewDescriptor(string(domain.ActionResolve), "Resolve", domain.VariantPrimary)
			d.Prompt = "Optional: resolution notes"
			out = append(out, d)
		}
	case domain.StatusResolved:
		if ctx.can(domain.ActionClose) {
			out = append(out, domain.NewDescriptor(string(domain.ActionClose), "Close", domain.VariantSecondary))
		}
	}
	return out
}
