package workflow

import "opsportal/internal/domain"

// OrderStatus derives the order status from its chain: pending_<role> while
// a stage waits, rejected once halted, and at completion delivered for
// product orders or service-created for service orders. The second result is
// false when the chain says nothing (empty, or neither pending nor terminal).
func OrderStatus(orderType string, chain domain.Chain) (string, bool) {
	if len(chain) == 0 {
		return "", false
	}
	if chain.Halted() {
		return domain.StatusRejected, true
	}
	if s, _, ok := chain.Pending(); ok {
		return "pending_" + string(s.Role), true
	}
	if !chain.Complete() {
		return "", false
	}
	if orderType == "service" {
		return domain.StatusServiceCreated, true
	}
	return domain.StatusDelivered, true
}

// OutcomeFor picks the stage outcome a role records when it accepts.
// Warehouses deliver, managers approve, everyone else accepts.
func OutcomeFor(role domain.Role) domain.StageStatus {
	switch role {
	case domain.RoleWarehouse:
		return domain.StageDelivered
	case domain.RoleManager:
		return domain.StageApproved
	}
	return domain.StageAccepted
}
