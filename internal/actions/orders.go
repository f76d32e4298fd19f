package actions

import (
	"strings"

	"opsportal/internal/domain"
)

// OrderDescriptors renders the backend-supplied order labels. Admins get the
// lifecycle set instead.
func OrderDescriptors(ctx Context) []domain.ActionDescriptor {
	if ctx.Role == domain.RoleAdmin {
		return AdminDescriptors(ctx)
	}
	if ctx.state() != domain.StateActive || ctx.Entity == nil {
		return nil
	}
	order, ok := ctx.Entity.Order()
	if !ok {
		return nil
	}
	terminal := order.Approvals.Terminal()
	seen := map[string]bool{}
	var out []domain.ActionDescriptor
	for _, label := range order.AvailableActions {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		c := ClassifyLabel(label)
		if c.IsViewLabel || seen[c.NormalKey] {
			continue
		}
		if c.IsCancel && terminal {
			continue
		}
		seen[c.NormalKey] = true
		d := domain.NewDescriptor(c.NormalKey, label, c.Variant)
		if c.Confirm {
			d.Confirm = "Are you sure you want to " + strings.ToLower(label) + " " + describe(ctx) + "?"
		}
		if c.AskReason {
			d.Prompt = "Please provide a reason:"
		}
		out = append(out, d)
	}
	return out
}
