package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsportal/internal/domain"
)

var kinds = []domain.EntityKind{domain.KindOrder, domain.KindReport, domain.KindFeedback, domain.KindService}

func allActions() []domain.Action {
	return append([]domain.Action{domain.ActionView}, domain.OperationalActions...)
}

func order(status string, data domain.OrderData) *domain.Entity {
	return &domain.Entity{ID: "ORD-1", Kind: domain.KindOrder, Status: status, Lifecycle: domain.Lifecycle{State: domain.StateActive}, Data: &data}
}

func report(kind domain.EntityKind, status string, acks domain.AckData) *domain.Entity {
	e := &domain.Entity{ID: "RPT-1", Kind: kind, Status: status, Lifecycle: domain.Lifecycle{State: domain.StateActive}}
	if kind == domain.KindFeedback {
		e.Data = &domain.FeedbackData{AckData: acks}
	} else {
		e.Data = &domain.ReportData{AckData: acks}
	}
	return e
}

func service(status string) *domain.Entity {
	return &domain.Entity{ID: "SRV-1", Kind: domain.KindService, Status: status, Lifecycle: domain.Lifecycle{State: domain.StateActive}, Data: &domain.ServiceData{}}
}

func TestDeletedIsTerminalForEveryone(t *testing.T) {
	for _, role := range domain.Roles() {
		for _, kind := range kinds {
			for _, a := range allActions() {
				ctx := Context{State: domain.StateDeleted}
				assert.Falsef(t, Can(kind, a, role, ctx), "%s %s %s", role, kind, a)
			}
			assert.Empty(t, AvailableActions(kind, role, Context{State: domain.StateDeleted}))
		}
	}
}

func TestViewAllowedWhileNotDeleted(t *testing.T) {
	for _, role := range domain.Roles() {
		for _, kind := range kinds {
			assert.True(t, Can(kind, domain.ActionView, role, Context{State: domain.StateActive}))
			assert.True(t, Can(kind, domain.ActionView, role, Context{State: domain.StateArchived}))
		}
	}
	assert.False(t, Can(domain.KindOrder, domain.ActionView, domain.Role("intern"), Context{State: domain.StateActive}))
	assert.False(t, Can(domain.KindOrder, domain.ActionView, domain.RoleAdmin, Context{State: "limbo"}))
}

func TestAdminActionSetsAreStateKeyed(t *testing.T) {
	cases := []struct {
		state domain.LifecycleState
		want  []domain.Action
	}{
		{domain.StateActive, []domain.Action{domain.ActionEdit, domain.ActionArchive}},
		{domain.StateArchived, []domain.Action{domain.ActionRestore, domain.ActionDelete}},
		{domain.StateDeleted, nil},
	}
	for _, tc := range cases {
		for _, kind := range kinds {
			// entity data is ignored for admins
			ctx := Context{State: tc.state, Entity: order("pending_warehouse", domain.OrderData{}), ViewerID: "ADM-1"}
			assert.Equalf(t, tc.want, AvailableActions(kind, domain.RoleAdmin, ctx), "%s %s", kind, tc.state)
		}
	}
}

func TestNonAdminNeverTouchesLifecycle(t *testing.T) {
	for _, role := range domain.Roles() {
		if role == domain.RoleAdmin {
			continue
		}
		for _, kind := range kinds {
			for _, state := range []domain.LifecycleState{domain.StateActive, domain.StateArchived} {
				for _, a := range []domain.Action{domain.ActionArchive, domain.ActionRestore, domain.ActionDelete} {
					assert.False(t, Can(kind, a, role, Context{State: state}))
				}
			}
			// archived entities are read-only for non-admins
			assert.Empty(t, AvailableActions(kind, role, Context{State: domain.StateArchived, Entity: service(domain.StatusInProgress)}))
		}
	}
}

func TestOrderRoleRules(t *testing.T) {
	e := order("pending_manager", domain.OrderData{})
	ctx := For(e, "X")
	assert.Equal(t, []domain.Action{domain.ActionAccept, domain.ActionReject, domain.ActionCreateService},
		AvailableActions(domain.KindOrder, domain.RoleManager, ctx))
	assert.Equal(t, []domain.Action{domain.ActionAccept, domain.ActionReject},
		AvailableActions(domain.KindOrder, domain.RoleContractor, ctx))
	assert.Equal(t, []domain.Action{domain.ActionCancel},
		AvailableActions(domain.KindOrder, domain.RoleCustomer, ctx))
	assert.Empty(t, AvailableActions(domain.KindOrder, domain.RoleCenter, ctx))
}

func TestWarehouseMustBeAssigned(t *testing.T) {
	e := order(domain.StatusPendingWarehouse, domain.OrderData{FulfilledByID: "WHS-1"})
	for _, a := range []domain.Action{domain.ActionAccept, domain.ActionReject} {
		assert.True(t, Can(domain.KindOrder, a, domain.RoleWarehouse, For(e, "WHS-1")))
		assert.False(t, Can(domain.KindOrder, a, domain.RoleWarehouse, For(e, "WHS-2")))
	}

	viaAssigned := order(domain.StatusPendingWarehouse, domain.OrderData{AssignedWarehouse: "WHS-3"})
	assert.True(t, Can(domain.KindOrder, domain.ActionAccept, domain.RoleWarehouse, For(viaAssigned, "WHS-3")))
	viaMeta := order(domain.StatusPendingWarehouse, domain.OrderData{Metadata: domain.OrderMetadata{WarehouseID: "WHS-4"}})
	assert.True(t, Can(domain.KindOrder, domain.ActionAccept, domain.RoleWarehouse, For(viaMeta, "WHS-4")))

	wrongStatus := order("pending_manager", domain.OrderData{FulfilledByID: "WHS-1"})
	assert.False(t, Can(domain.KindOrder, domain.ActionAccept, domain.RoleWarehouse, For(wrongStatus, "WHS-1")))
	assert.False(t, Can(domain.KindOrder, domain.ActionCancel, domain.RoleWarehouse, For(e, "WHS-1")))
}

func TestCrewCancelsOwnPendingOrder(t *testing.T) {
	own := order("pending_customer", domain.OrderData{Metadata: domain.OrderMetadata{CrewID: "CRW-1"}})
	assert.True(t, Can(domain.KindOrder, domain.ActionCancel, domain.RoleCrew, For(own, "CRW-1")))
	assert.False(t, Can(domain.KindOrder, domain.ActionCancel, domain.RoleCrew, For(own, "CRW-2")))

	created := order("pending_contractor", domain.OrderData{CreatorID: "CRW-9"})
	assert.True(t, Can(domain.KindOrder, domain.ActionCancel, domain.RoleCrew, For(created, "CRW-9")))

	done := order(domain.StatusDelivered, domain.OrderData{CreatorID: "CRW-9"})
	assert.False(t, Can(domain.KindOrder, domain.ActionCancel, domain.RoleCrew, For(done, "CRW-9")))
	assert.False(t, Can(domain.KindOrder, domain.ActionAccept, domain.RoleCrew, For(created, "CRW-9")))
}

func TestAcknowledgeRules(t *testing.T) {
	// customers only acknowledge feedback
	rpt := report(domain.KindReport, domain.StatusOpen, domain.AckData{})
	assert.False(t, Can(domain.KindReport, domain.ActionAcknowledge, domain.RoleCustomer, For(rpt, "Y")))

	fb := report(domain.KindFeedback, domain.StatusOpen, domain.AckData{CreatorID: "X"})
	assert.False(t, Can(domain.KindFeedback, domain.ActionAcknowledge, domain.RoleCustomer, For(fb, "X")))
	assert.False(t, Can(domain.KindFeedback, domain.ActionAcknowledge, domain.RoleCustomer, For(fb, " x ")))
	assert.True(t, Can(domain.KindFeedback, domain.ActionAcknowledge, domain.RoleCustomer, For(fb, "Y")))

	for _, role := range []domain.Role{domain.RoleCenter, domain.RoleContractor, domain.RoleCrew} {
		assert.True(t, Can(domain.KindReport, domain.ActionAcknowledge, role, For(rpt, "Y")))
		assert.False(t, Can(domain.KindFeedback, domain.ActionAcknowledge, role, For(fb, "Y")))
	}
	assert.True(t, Can(domain.KindFeedback, domain.ActionAcknowledge, domain.RoleManager, For(fb, "Y")))

	acked := report(domain.KindReport, domain.StatusOpen, domain.AckData{Acknowledgments: []domain.Acknowledgment{{UserID: "ctr-1"}}})
	assert.False(t, Can(domain.KindReport, domain.ActionAcknowledge, domain.RoleContractor, For(acked, "CTR-1")))

	resolved := report(domain.KindReport, domain.StatusResolved, domain.AckData{})
	assert.False(t, Can(domain.KindReport, domain.ActionAcknowledge, domain.RoleContractor, For(resolved, "Y")))
}

func TestResolveRequiresQuorum(t *testing.T) {
	acks := domain.AckData{
		RequiredAcknowledgers: []string{"A", "B"},
		Acknowledgments:       []domain.Acknowledgment{{UserID: "a"}},
	}
	e := report(domain.KindReport, domain.StatusOpen, acks)
	assert.False(t, Can(domain.KindReport, domain.ActionResolve, domain.RoleManager, For(e, "M")))
	assert.Equal(t, []string{"B"}, MissingAcknowledgers(&acks))

	acks.Acknowledgments = append(acks.Acknowledgments, domain.Acknowledgment{UserID: "B"})
	e = report(domain.KindReport, domain.StatusOpen, acks)
	assert.True(t, Can(domain.KindReport, domain.ActionResolve, domain.RoleManager, For(e, "M")))
	assert.False(t, Can(domain.KindReport, domain.ActionResolve, domain.RoleContractor, For(e, "M")))
}

func TestResolveWithoutRequiredListUsesFlag(t *testing.T) {
	e := report(domain.KindFeedback, domain.StatusOpen, domain.AckData{})
	assert.False(t, Can(domain.KindFeedback, domain.ActionResolve, domain.RoleManager, For(e, "M")))
	e = report(domain.KindFeedback, domain.StatusOpen, domain.AckData{AcknowledgmentComplete: true})
	assert.True(t, Can(domain.KindFeedback, domain.ActionResolve, domain.RoleManager, For(e, "M")))
}

func TestCloseRequiresResolved(t *testing.T) {
	open := report(domain.KindReport, domain.StatusOpen, domain.AckData{CreatorID: "C"})
	assert.False(t, Can(domain.KindReport, domain.ActionClose, domain.RoleManager, For(open, "M")))

	resolved := report(domain.KindReport, domain.StatusResolved, domain.AckData{CreatorID: "C"})
	assert.True(t, Can(domain.KindReport, domain.ActionClose, domain.RoleManager, For(resolved, "M")))
	assert.True(t, Can(domain.KindReport, domain.ActionClose, domain.RoleCenter, For(resolved, "c")))
	assert.False(t, Can(domain.KindReport, domain.ActionClose, domain.RoleCenter, For(resolved, "D")))
}

func TestServiceRules(t *testing.T) {
	pending := service(domain.StatusPending)
	running := service(domain.StatusInProgress)
	require.Equal(t, []domain.Action{domain.ActionStart, domain.ActionAssignCrew},
		AvailableActions(domain.KindService, domain.RoleManager, For(pending, "M")))
	require.Equal(t, []domain.Action{domain.ActionComplete, domain.ActionAssignCrew},
		AvailableActions(domain.KindService, domain.RoleManager, For(running, "M")))
	assert.Equal(t, []domain.Action{domain.ActionComplete}, AvailableActions(domain.KindService, domain.RoleCrew, For(running, "C")))
	assert.Empty(t, AvailableActions(domain.KindService, domain.RoleCrew, For(pending, "C")))
	assert.Empty(t, AvailableActions(domain.KindService, domain.RoleCustomer, For(running, "C")))
}

func TestContextStateFallsBackToEntity(t *testing.T) {
	e := service(domain.StatusPending)
	e.Lifecycle.State = domain.StateArchived
	assert.True(t, Can(domain.KindService, domain.ActionRestore, domain.RoleAdmin, Context{Entity: e}))
	assert.False(t, Can(domain.KindService, domain.ActionStart, domain.RoleManager, Context{Entity: e}))
}
