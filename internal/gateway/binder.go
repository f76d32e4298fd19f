package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"opsportal/internal/domain"
)

// NotesKey is where prompted input lands in the payload.
const NotesKey = "notes"

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDeclined  Outcome = "declined"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

var errNoExecutor = errors.New("no executor bound")

// Binder turns descriptors into runnable actions and suppresses duplicate
// submissions of the same action on the same entity.
type Binder struct {
	Notifier Notifier
	Logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewBinder(notifier Notifier, logger *zap.Logger) *Binder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{Notifier: notifier, Logger: logger, inflight: map[string]struct{}{}}
}

// Bind attaches handlers to each descriptor, keeping order.
func (b *Binder) Bind(entityID string, descriptors []domain.ActionDescriptor, c Collaborators) []*BoundAction {
	out := make([]*BoundAction, 0, len(descriptors))
	for _, d := range descriptors {
		d = d.Clone()
		out = append(out, &BoundAction{
			Label:          d.Label,
			Variant:        d.Variant,
			CloseOnSuccess: d.CloseOnSuccess,
			entityID:       entityID,
			desc:           d,
			binder:         b,
			collab:         c,
		})
	}
	return out
}

func inflightKey(entityID, key string) string { return entityID + "\x00" + key }

func (b *Binder) acquire(entityID, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight == nil {
		b.inflight = map[string]struct{}{}
	}
	k := inflightKey(entityID, key)
	if _, busy := b.inflight[k]; busy {
		return false
	}
	b.inflight[k] = struct{}{}
	return true
}

func (b *Binder) release(entityID, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, inflightKey(entityID, key))
}

// InFlight reports whether the action is currently running on the entity.
func (b *Binder) InFlight(entityID, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, busy := b.inflight[inflightKey(entityID, key)]
	return busy
}

func (b *Binder) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// BoundAction is a descriptor with its handler attached.
type BoundAction struct {
	Label          string         `json:"label"`
	Variant        domain.Variant `json:"variant"`
	CloseOnSuccess bool           `json:"closeOnSuccess"`

	entityID string
	desc     domain.ActionDescriptor
	binder   *Binder
	collab   Collaborators
}

// Loading reports whether a run of this action on this entity is outstanding.
func (a *BoundAction) Loading() bool {
	return a.binder.InFlight(a.entityID, a.desc.Key)
}

// Run executes the action: confirm, prompt, execute, then close the surface.
// Declines and duplicates return without error and without side effects.
// Execution failures are notified and returned; the surface stays open.
func (a *BoundAction) Run(ctx context.Context) (Outcome, error) {
	b := a.binder
	if !b.acquire(a.entityID, a.desc.Key) {
		return OutcomeDuplicate, nil
	}
	defer b.release(a.entityID, a.desc.Key)

	log := b.log().With(zap.String("entity_id", a.entityID), zap.String("action", a.desc.Key))

	if a.desc.Confirm != "" {
		ok, err := a.confirm(ctx)
		if err != nil {
			return a.fail(ctx, log, fmt.Errorf("confirm: %w", err))
		}
		if !ok {
			log.Debug("confirmation declined")
			return OutcomeDeclined, nil
		}
	}

	var notes string
	if a.desc.Prompt != "" {
		input, err := a.prompt(ctx)
		if err != nil {
			return a.fail(ctx, log, fmt.Errorf("prompt: %w", err))
		}
		notes = strings.TrimSpace(input)
		if notes == "" && !PromptIsOptional(a.desc.Prompt) {
			log.Debug("required input missing")
			return OutcomeDeclined, nil
		}
	}

	payload := domain.ClonePayload(a.desc.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	if notes != "" {
		payload[NotesKey] = notes
	}

	if err := a.execute(ctx, payload); err != nil {
		return a.fail(ctx, log, err)
	}
	log.Info("action executed")
	if a.CloseOnSuccess && a.collab.Surface != nil {
		a.collab.Surface.Close(a.entityID)
	}
	return OutcomeCompleted, nil
}

// PromptIsOptional is the optionality signal: the prompt text says "optional".
func PromptIsOptional(prompt string) bool {
	return strings.Contains(strings.ToLower(prompt), "optional")
}

func (a *BoundAction) confirm(ctx context.Context) (bool, error) {
	if a.collab.Prompter == nil {
		return false, nil
	}
	return a.collab.Prompter.Confirm(ctx, a.desc.Confirm)
}

func (a *BoundAction) prompt(ctx context.Context) (string, error) {
	if a.collab.Prompter == nil {
		return "", nil
	}
	return a.collab.Prompter.Prompt(ctx, a.desc.Prompt)
}

func (a *BoundAction) execute(ctx context.Context, payload map[string]any) (err error) {
	if a.collab.Executor == nil {
		return errNoExecutor
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return a.collab.Executor.Execute(ctx, a.entityID, a.desc.Key, payload)
}

func (a *BoundAction) fail(ctx context.Context, log *zap.Logger, err error) (Outcome, error) {
	log.Warn("action failed", zap.Error(err))
	if a.binder.Notifier != nil {
		a.binder.Notifier.Notify(ctx, Notification{EntityID: a.entityID, ActionKey: a.desc.Key, Message: err.Error()})
	}
	return OutcomeFailed, err
}
