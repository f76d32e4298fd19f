package engine

import (
	"errors"
	"strings"
	"time"

	"opsportal/internal/domain"
	"opsportal/internal/workflow"
)

// applyOrder moves the order's approval chain. create_service also returns
// the service entity to insert.
func (e Engine) applyOrder(ent *domain.Entity, action domain.Action, who domain.Identity, notes string, now time.Time) (*domain.Entity, bool, error) {
	order, ok := ent.Order()
	if !ok {
		return nil, false, errors.New("order entity without order data")
	}
	switch action {
	case domain.ActionAccept, domain.ActionCreateService:
		if action == domain.ActionCreateService && order.OrderType != "service" {
			return nil, false, ConflictError{Reason: "only service orders create services"}
		}
		if action == domain.ActionAccept && order.OrderType == "service" && who.Role == domain.RoleManager {
			return nil, false, ConflictError{Reason: "managers complete service orders with create_service"}
		}
		chain, err := workflow.Resolve(order.Approvals, who.Role, workflow.OutcomeFor(who.Role), who.ActorID, now)
		if err != nil {
			return nil, false, chainConflict(err)
		}
		order.Approvals = chain
		ent.Status, _ = workflow.OrderStatus(order.OrderType, chain)
		if who.Role == domain.RoleWarehouse && order.FulfilledByID == "" {
			order.FulfilledByID = who.ActorID
		}
		if action != domain.ActionCreateService {
			return nil, false, nil
		}
		svc := &domain.Entity{
			ID:        newID(domain.KindService),
			Kind:      domain.KindService,
			Status:    domain.StatusPending,
			Lifecycle: domain.Lifecycle{State: domain.StateActive},
			Data: &domain.ServiceData{
				OrderID:      ent.ID,
				ManagerID:    who.ActorID,
				CenterID:     order.CenterID,
				Availability: order.Availability,
			},
		}
		order.ServiceID = svc.ID
		return svc, false, nil
	case domain.ActionReject:
		if notes == "" {
			return nil, false, ConflictError{Reason: "a rejection needs a reason"}
		}
		chain, err := workflow.Resolve(order.Approvals, who.Role, domain.StageRejected, who.ActorID, now)
		if err != nil {
			return nil, false, chainConflict(err)
		}
		order.Approvals = chain
		order.RejectionReason = notes
		ent.Status = domain.StatusRejected
		return nil, true, nil
	case domain.ActionCancel:
		if !strings.Contains(ent.Status, "pending") || order.Approvals.Terminal() {
			return nil, false, ConflictError{Reason: "order can no longer be cancelled"}
		}
		order.CancellationReason = notes
		ent.Status = domain.StatusCancelled
		return nil, false, nil
	}
	return nil, false, UnsupportedActionError{Key: string(action)}
}

func chainConflict(err error) error {
	var turn workflow.NotYourTurnError
	if errors.As(err, &turn) || errors.Is(err, workflow.ErrHalted) || errors.Is(err, workflow.ErrNoPending) || errors.Is(err, workflow.ErrBrokenChain) {
		return ConflictError{Reason: err.Error()}
	}
	return err
}

// orderLabels are the free-text actions the backend offers on an order for
// this caller. Only the role whose stage is pending may accept or reject.
func orderLabels(ent domain.Entity, order *domain.OrderData, who domain.Identity, can func(domain.Action) bool) []string {
	var out []string
	awaiting, myTurn := workflow.AwaitingRole(order.Approvals)
	myTurn = myTurn && awaiting == who.Role
	isService := order.OrderType == "service"
	if myTurn && can(domain.ActionAccept) && !(isService && who.Role == domain.RoleManager) {
		out = append(out, "Accept")
	}
	if myTurn && can(domain.ActionCreateService) && isService {
		out = append(out, "Create Service")
	}
	if myTurn && can(domain.ActionReject) {
		out = append(out, "Reject")
	}
	if strings.Contains(ent.Status, "pending") && !order.Approvals.Terminal() && can(domain.ActionCancel) {
		out = append(out, "Cancel")
	}
	return append(out, "View Details")
}
