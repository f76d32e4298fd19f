package policy

import (
	"opsportal/internal/domain"
)

// Section ids.
const (
	SectionOverview           = "overview"
	SectionRequestor          = "requestor"
	SectionDestination        = "destination"
	SectionAvailability       = "availability"
	SectionCancellationReason = "cancellation-reason"
	SectionRejectionReason    = "rejection-reason"
	SectionApprovalChain      = "approval-chain"
	SectionCrewAssignments    = "crew-assignments"
	SectionAcknowledgments    = "acknowledgments"
	SectionResolution         = "resolution"
	SectionLifecycle          = "lifecycle"
)

// Tab ids.
const (
	TabDetails   = "details"
	TabActions   = "actions"
	TabApprovals = "approvals"
	TabHistory   = "history"
	TabAudit     = "audit"
)

// Diagnostics receives reports about missing rules. It is never told about
// ordinary denials.
type Diagnostics interface {
	UnknownIdentifier(scope, id string)
}

type nopDiagnostics struct{}

func (nopDiagnostics) UnknownIdentifier(string, string) {}

// VisibilityContext is what section and tab rules look at.
type VisibilityContext struct {
	Kind   domain.EntityKind
	Role   domain.Role
	State  domain.LifecycleState
	Entity *domain.Entity
}

func (vc VisibilityContext) status() string {
	if vc.Entity == nil {
		return ""
	}
	return vc.Entity.Status
}

func (vc VisibilityContext) state() domain.LifecycleState {
	if vc.State == "" && vc.Entity != nil {
		return vc.Entity.State()
	}
	return vc.State
}

// Visibility gates display regions. Unknown ids are reported to Diagnostics
// and hidden.
type Visibility struct {
	Diagnostics Diagnostics
}

func (v Visibility) diag() Diagnostics {
	if v.Diagnostics == nil {
		return nopDiagnostics{}
	}
	return v.Diagnostics
}

func (v Visibility) CanSeeSection(id string, vc VisibilityContext) bool {
	switch id {
	case SectionOverview:
		return true
	case SectionRequestor, SectionAvailability:
		return vc.Kind == domain.KindOrder || vc.Kind == domain.KindService
	case SectionDestination:
		return vc.Kind == domain.KindOrder
	case SectionCancellationReason:
		return vc.status() == domain.StatusCancelled
	case SectionRejectionReason:
		return vc.status() == domain.StatusRejected
	case SectionApprovalChain:
		if vc.Entity == nil {
			return false
		}
		order, ok := vc.Entity.Order()
		return ok && len(order.Approvals) > 0
	case SectionCrewAssignments:
		if vc.Kind != domain.KindService {
			return false
		}
		return vc.Role == domain.RoleAdmin || vc.Role == domain.RoleManager || vc.Role == domain.RoleContractor
	case SectionAcknowledgments:
		return vc.Kind == domain.KindReport || vc.Kind == domain.KindFeedback
	case SectionResolution:
		if vc.Kind != domain.KindReport && vc.Kind != domain.KindFeedback {
			return false
		}
		s := vc.status()
		return s == domain.StatusResolved || s == domain.StatusClosed
	case SectionLifecycle:
		return vc.Role == domain.RoleAdmin || vc.state() != domain.StateActive
	}
	v.diag().UnknownIdentifier("section", id)
	return false
}

func (v Visibility) CanSeeTab(id string, vc VisibilityContext) bool {
	switch id {
	case TabDetails, TabHistory:
		return true
	case TabActions:
		return !vc.state().Terminal()
	case TabApprovals:
		return vc.Kind == domain.KindOrder
	case TabAudit:
		return vc.Role == domain.RoleAdmin
	}
	v.diag().UnknownIdentifier("tab", id)
	return false
}

// Region is a section or tab as a hub lays it out.
type Region struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// FilterVisible keeps the items whose id passes visible, preserving order.
func FilterVisible[T any](items []T, idOf func(T) string, visible func(string) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if visible(idOf(it)) {
			out = append(out, it)
		}
	}
	return out
}

func (v Visibility) Sections(regions []Region, vc VisibilityContext) []Region {
	return FilterVisible(regions, regionID, func(id string) bool { return v.CanSeeSection(id, vc) })
}

func (v Visibility) Tabs(regions []Region, vc VisibilityContext) []Region {
	return FilterVisible(regions, regionID, func(id string) bool { return v.CanSeeTab(id, vc) })
}

func regionID(r Region) string { return r.ID }

// DefaultSections is the standard detail layout, top to bottom.
func DefaultSections() []Region {
	return []Region{
		{ID: SectionOverview, Title: "Overview"},
		{ID: SectionRequestor, Title: "Requestor"},
		{ID: SectionDestination, Title: "Destination"},
		{ID: SectionAvailability, Title: "Availability"},
		{ID: SectionApprovalChain, Title: "Approvals"},
		{ID: SectionCrewAssignments, Title: "Crew"},
		{ID: SectionAcknowledgments, Title: "Acknowledgments"},
		{ID: SectionResolution, Title: "Resolution"},
		{ID: SectionCancellationReason, Title: "Cancellation reason"},
		{ID: SectionRejectionReason, Title: "Rejection reason"},
		{ID: SectionLifecycle, Title: "Lifecycle"},
	}
}

// DefaultTabs is the standard tab strip, left to right.
func DefaultTabs() []Region {
	return []Region{
		{ID: TabDetails, Title: "Details"},
		{ID: TabActions, Title: "Actions"},
		{ID: TabApprovals, Title: "Approvals"},
		{ID: TabHistory, Title: "History"},
		{ID: TabAudit, Title: "Audit"},
	}
}
