package domain

import "time"

type StageStatus string

const (
	StageWaiting   StageStatus = "waiting"
	StageRequested StageStatus = "requested"
	StagePending   StageStatus = "pending"
	StageApproved  StageStatus = "approved"
	StageRejected  StageStatus = "rejected"
	StageAccepted  StageStatus = "accepted"
	StageDelivered StageStatus = "delivered"
)

// Resolved reports whether the stage has been acted on successfully.
func (s StageStatus) Resolved() bool {
	switch s {
	case StageRequested, StageApproved, StageAccepted, StageDelivered:
		return true
	}
	return false
}

func (s StageStatus) Valid() bool {
	switch s {
	case StageWaiting, StagePending, StageRejected:
		return true
	}
	return s.Resolved()
}

type Stage struct {
	Role      Role        `json:"role"`
	Status    StageStatus `json:"status" enum:"waiting,requested,pending,approved,rejected,accepted,delivered"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

// Chain is an ordered approval sequence. Transitions live in package workflow;
// the methods here only read.
type Chain []Stage

// Pending returns the single awaiting stage, if any.
func (c Chain) Pending() (Stage, int, bool) {
	for i, s := range c {
		if s.Status == StagePending {
			return s, i, true
		}
	}
	return Stage{}, -1, false
}

func (c Chain) Halted() bool {
	for _, s := range c {
		if s.Status == StageRejected {
			return true
		}
	}
	return false
}

// Complete reports whether every stage resolved successfully.
func (c Chain) Complete() bool {
	if len(c) == 0 {
		return false
	}
	for _, s := range c {
		if !s.Status.Resolved() {
			return false
		}
	}
	return true
}

// Terminal reports whether the chain can no longer advance.
func (c Chain) Terminal() bool { return c.Halted() || c.Complete() }

func (c Chain) Clone() Chain {
	if c == nil {
		return nil
	}
	out := make(Chain, len(c))
	copy(out, c)
	return out
}
