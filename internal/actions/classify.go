package actions

import (
	"regexp"
	"strings"

	"opsportal/internal/domain"
)

var (
	primaryLabel = regexp.MustCompile(`(?i)accept|approve|create service`)
	dangerLabel  = regexp.MustCompile(`(?i)reject|decline|cancel`)
	reasonLabel  = regexp.MustCompile(`(?i)reject|decline`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Classification is what a free-text backend label implies for its descriptor.
type Classification struct {
	Variant     domain.Variant
	Confirm     bool
	AskReason   bool
	IsCancel    bool
	NormalKey   string
	IsViewLabel bool
}

// ClassifyLabel is the one place backend labels are interpreted. Swap it out
// when the backend starts sending variant/confirm/prompt itself.
func ClassifyLabel(label string) Classification {
	c := Classification{
		Variant:     domain.VariantSecondary,
		NormalKey:   LabelKey(label),
		IsViewLabel: strings.EqualFold(strings.TrimSpace(label), "view details"),
	}
	switch {
	case primaryLabel.MatchString(label):
		c.Variant = domain.VariantPrimary
	case dangerLabel.MatchString(label):
		c.Variant = domain.VariantDanger
		c.Confirm = true
		c.AskReason = reasonLabel.MatchString(label)
		c.IsCancel = strings.Contains(strings.ToLower(label), "cancel")
	}
	return c
}

// LabelKey lower-cases a label and joins its words with underscores.
func LabelKey(label string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
}

// ActionForKey maps a normalized backend key to the policy action it performs.
func ActionForKey(key string) (domain.Action, bool) {
	switch key {
	case "accept", "approve":
		return domain.ActionAccept, true
	case "reject", "decline":
		return domain.ActionReject, true
	case "cancel", "cancel_order":
		return domain.ActionCancel, true
	case "create_service":
		return domain.ActionCreateService, true
	}
	a := domain.Action(key)
	for _, known := range domain.OperationalActions {
		if a == known {
			return a, true
		}
	}
	return "", false
}
