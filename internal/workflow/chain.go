// Package workflow implements sequential multi-party approval chains.
//
// A chain is a list of stages, one per role. The first stage is the requester
// and starts resolved; the stage after the last resolved one is the single
// pending stage. A rejection halts the chain for good.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"opsportal/internal/domain"
)

var (
	ErrEmptyChain  = errors.New("approval chain needs at least one role")
	ErrHalted      = errors.New("approval chain was rejected")
	ErrNoPending   = errors.New("approval chain has no pending stage")
	ErrBrokenChain = errors.New("approval chain is out of order")
)

// NotYourTurnError is returned when a role acts while another stage is pending.
type NotYourTurnError struct {
	Role    domain.Role
	Pending domain.Role
}

func (e NotYourTurnError) Error() string {
	return fmt.Sprintf("stage %s is pending; %s cannot act", e.Pending, e.Role)
}

// New builds a chain for the given roles. The first role has already requested,
// so the second becomes pending straight away.
func New(roles ...domain.Role) (domain.Chain, error) {
	if len(roles) == 0 {
		return nil, ErrEmptyChain
	}
	chain := make(domain.Chain, len(roles))
	for i, r := range roles {
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q in approval chain", r)
		}
		chain[i] = domain.Stage{Role: r, Status: domain.StageWaiting}
	}
	chain[0].Status = domain.StageRequested
	promote(chain, 0)
	return chain, nil
}

// Request is New plus the requester's identity and time on the first stage.
func Request(actorID string, at time.Time, roles ...domain.Role) (domain.Chain, error) {
	chain, err := New(roles...)
	if err != nil {
		return nil, err
	}
	at = at.UTC()
	chain[0].ActorID = actorID
	chain[0].Timestamp = &at
	return chain, nil
}

// Resolve records the pending stage's outcome. Successful outcomes promote the
// next stage; a rejection halts the chain. The input chain is not modified.
func Resolve(chain domain.Chain, role domain.Role, outcome domain.StageStatus, actorID string, at time.Time) (domain.Chain, error) {
	if outcome != domain.StageRejected && (!outcome.Resolved() || outcome == domain.StageRequested) {
		return chain, fmt.Errorf("invalid stage outcome %q", outcome)
	}
	if err := Validate(chain); err != nil {
		return chain, fmt.Errorf("%w: %v", ErrBrokenChain, err)
	}
	if chain.Halted() {
		return chain, ErrHalted
	}
	pending, idx, ok := chain.Pending()
	if !ok {
		return chain, ErrNoPending
	}
	if pending.Role != role {
		return chain, NotYourTurnError{Role: role, Pending: pending.Role}
	}
	out := chain.Clone()
	at = at.UTC()
	out[idx].Status = outcome
	out[idx].ActorID = actorID
	out[idx].Timestamp = &at
	if outcome != domain.StageRejected {
		promote(out, idx)
	}
	return out, nil
}

func promote(chain domain.Chain, resolved int) {
	next := resolved + 1
	if next < len(chain) && chain[next].Status == domain.StageWaiting {
		chain[next].Status = domain.StagePending
	}
}

// Validate checks the single-pending-stage invariant.
func Validate(chain domain.Chain) error {
	pendingAt, waitingAt := -1, -1
	halted := false
	for i, s := range chain {
		if !s.Status.Valid() {
			return fmt.Errorf("stage %d (%s): unknown status %q", i, s.Role, s.Status)
		}
		if s.Status == domain.StageWaiting {
			if waitingAt < 0 {
				waitingAt = i
			}
			continue
		}
		if waitingAt >= 0 {
			return fmt.Errorf("stage %d is %s after waiting stage %d", i, s.Status, waitingAt)
		}
		switch {
		case s.Status == domain.StagePending:
			if pendingAt >= 0 {
				return fmt.Errorf("stages %d and %d are both pending", pendingAt, i)
			}
			if halted {
				return fmt.Errorf("stage %d pending after a rejection", i)
			}
			pendingAt = i
		case s.Status == domain.StageRejected:
			if pendingAt >= 0 {
				return fmt.Errorf("stage %d resolved after pending stage %d", i, pendingAt)
			}
			halted = true
		case s.Status.Resolved():
			if pendingAt >= 0 {
				return fmt.Errorf("stage %d resolved after pending stage %d", i, pendingAt)
			}
			if halted {
				return fmt.Errorf("stage %d resolved after a rejection", i)
			}
		}
	}
	if pendingAt >= 0 {
		for i := 0; i < pendingAt; i++ {
			if !chain[i].Status.Resolved() {
				return fmt.Errorf("stage %d before pending stage is %s", i, chain[i].Status)
			}
		}
		for i := pendingAt + 1; i < len(chain); i++ {
			if chain[i].Status != domain.StageWaiting {
				return fmt.Errorf("stage %d after pending stage is %s", i, chain[i].Status)
			}
		}
		return nil
	}
	if waitingAt >= 0 && !halted {
		return fmt.Errorf("stage %d is waiting but no stage is pending", waitingAt)
	}
	return nil
}

// AwaitingRole is the role whose turn it is.
func AwaitingRole(chain domain.Chain) (domain.Role, bool) {
	if chain.Halted() {
		return "", false
	}
	s, _, ok := chain.Pending()
	return s.Role, ok
}

// StageView is a stage as one viewer sees it.
type StageView struct {
	domain.Stage
	Actionable bool `json:"actionable"`
	Current    bool `json:"current"`
}

// ViewFor renders the whole chain for a viewer; only the pending stage that
// belongs to the viewer's role is actionable.
func ViewFor(chain domain.Chain, viewer domain.Role) []StageView {
	halted := chain.Halted()
	out := make([]StageView, len(chain))
	for i, s := range chain {
		pending := s.Status == domain.StagePending && !halted
		out[i] = StageView{
			Stage:      s,
			Current:    pending,
			Actionable: pending && s.Role == viewer,
		}
	}
	return out
}
