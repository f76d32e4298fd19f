package engine

import (
	"errors"
	"time"

	"opsportal/internal/domain"
	"opsportal/internal/policy"
)

func applyReport(ent *domain.Entity, action domain.Action, who domain.Identity, notes string, now time.Time) error {
	acks, ok := ent.Acks()
	if !ok {
		return errors.New("report entity without acknowledgment data")
	}
	switch action {
	case domain.ActionAcknowledge:
		acks.Acknowledgments = append(acks.Acknowledgments, domain.Acknowledgment{UserID: who.ActorID, Timestamp: now})
		if len(acks.RequiredAcknowledgers) == 0 {
			acks.AcknowledgmentComplete = true
		} else {
			acks.AcknowledgmentComplete = policy.QuorumMet(acks)
		}
		return nil
	case domain.ActionResolve:
		acks.ResolvedBy = who.ActorID
		acks.Resolution = notes
		ent.Status = domain.StatusResolved
		return nil
	case domain.ActionClose:
		ent.Status = domain.StatusClosed
		return nil
	}
	return UnsupportedActionError{Key: string(action)}
}
