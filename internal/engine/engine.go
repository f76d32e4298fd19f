package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opsportal/internal/actions"
	"opsportal/internal/config"
	"opsportal/internal/domain"
	"opsportal/internal/engine/auth"
	"opsportal/internal/events"
	"opsportal/internal/repo"
	"opsportal/internal/workflow"
)

// UnsupportedActionError is returned for keys the engine cannot execute.
type UnsupportedActionError struct {
	Key string
}

func (e UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action %q", e.Key)
}

// ConflictError means the action is permitted for the role but not in the
// entity's current state, e.g. another stage of the chain is pending.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// CreateOptions are parameters for creating an entity.
type CreateOptions struct {
	ID    string
	Kind  domain.EntityKind
	Data  domain.EntityData
	Actor domain.Identity
}

var idPrefix = map[domain.EntityKind]string{
	domain.KindOrder:    "ORD",
	domain.KindReport:   "RPT",
	domain.KindFeedback: "FBK",
	domain.KindService:  "SVC",
}

func newID(kind domain.EntityKind) string {
	return idPrefix[kind] + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// CreateEntity stores a new active entity. Orders get their approval chain
// from the workflow template of their order type.
func (e Engine) CreateEntity(ctx context.Context, opts CreateOptions) (domain.Entity, error) {
	if e.Config == nil {
		return domain.Entity{}, errors.New("config not loaded")
	}
	if err := auth.CheckIdentity(opts.Actor); err != nil {
		return domain.Entity{}, err
	}
	if _, ok := domain.ParseKind(string(opts.Kind)); !ok {
		return domain.Entity{}, fmt.Errorf("unknown entity kind %q", opts.Kind)
	}
	data := opts.Data
	if data == nil {
		var err error
		if data, err = domain.NewData(opts.Kind); err != nil {
			return domain.Entity{}, err
		}
	}
	if data.Kind() != opts.Kind {
		return domain.Entity{}, fmt.Errorf("%s data given for a %s", data.Kind(), opts.Kind)
	}
	now := e.now()
	ts := now.Format(time.RFC3339)
	ent := domain.Entity{
		ID:        opts.ID,
		Kind:      opts.Kind,
		Lifecycle: domain.Lifecycle{State: domain.StateActive},
		Data:      data,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if ent.ID == "" {
		ent.ID = newID(opts.Kind)
	}
	switch d := data.(type) {
	case *domain.OrderData:
		d.CreatorID = opts.Actor.ActorID
		d.FulfilledByID = ""
		d.ServiceID = ""
		d.CancellationReason = ""
		d.RejectionReason = ""
		approvers, err := e.Config.Workflows.ChainFor(d.OrderType)
		if err != nil {
			return domain.Entity{}, err
		}
		roles := []domain.Role{opts.Actor.Role}
		for _, r := range approvers {
			if r != opts.Actor.Role {
				roles = append(roles, r)
			}
		}
		if d.Approvals, err = workflow.Request(opts.Actor.ActorID, now, roles...); err != nil {
			return domain.Entity{}, err
		}
		ent.Status, _ = workflow.OrderStatus(d.OrderType, d.Approvals)
		d.AvailableActions = nil
	case *domain.ReportData:
		freshAcks(&d.AckData, opts.Actor.ActorID)
		ent.Status = domain.StatusOpen
	case *domain.FeedbackData:
		freshAcks(&d.AckData, opts.Actor.ActorID)
		ent.Status = domain.StatusOpen
	case *domain.ServiceData:
		if d.ManagerID == "" {
			d.ManagerID = opts.Actor.ActorID
		}
		d.AssignedCrew = nil
		ent.Status = domain.StatusPending
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Entity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEntityTx(ctx, tx, ent); err != nil {
		return domain.Entity{}, fmt.Errorf("insert entity: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeEntityCreated, string(ent.Kind), ent.ID, opts.Actor.ActorID, events.EventPayload{"status": ent.Status}); err != nil {
		return domain.Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Entity{}, err
	}
	e.log().Info("entity created", zap.String("kind", string(ent.Kind)), zap.String("entity_id", ent.ID), zap.String("actor", opts.Actor.ActorID))
	return ent, nil
}

// freshAcks keeps only the required acknowledgers of client data. Progress
// is recorded by acknowledge and resolve, never supplied up front.
func freshAcks(a *domain.AckData, creator string) {
	a.CreatorID = creator
	a.Acknowledgments = nil
	a.AcknowledgmentComplete = false
	a.ResolvedBy = ""
	a.Resolution = ""
}

// Get loads an entity as stored, without caller-specific decoration.
func (e Engine) Get(ctx context.Context, id string) (domain.Entity, error) {
	return e.Repo.GetEntity(ctx, id)
}

// Apply executes one action on behalf of who: it re-checks the permission
// policy on a fresh snapshot, applies the transition and records an event,
// all in one transaction.
func (e Engine) Apply(ctx context.Context, who domain.Identity, entityID, key string, payload map[string]any) (domain.Entity, error) {
	action, ok := actions.ActionForKey(key)
	if !ok || action == domain.ActionEdit {
		return domain.Entity{}, UnsupportedActionError{Key: key}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Entity{}, err
	}
	defer tx.Rollback()

	ent, err := e.Repo.GetEntityTx(ctx, tx, entityID)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := auth.Require(ent, action, who); err != nil {
		return ent, err
	}
	notes := notesFrom(payload)
	now := e.now()
	evt := events.EventPayload{"action": string(action), "from": ent.Status}
	if notes != "" {
		evt["notes"] = notes
	}
	evtType := events.TypeAction
	var created *domain.Entity

	switch {
	case action.Lifecycle():
		evtType = events.TypeLifecycle
		lc := ent.Lifecycle
		lc.State = ent.State()
		if ent.Lifecycle, err = lc.Apply(action, who.ActorID, notes, now); err != nil {
			return ent, err
		}
		evt["state"] = string(ent.Lifecycle.State)
	case ent.Kind == domain.KindOrder:
		var halted bool
		if created, halted, err = e.applyOrder(&ent, action, who, notes, now); err != nil {
			return ent, err
		}
		if halted {
			evtType = events.TypeChainHalted
		} else if action == domain.ActionAccept || action == domain.ActionCreateService {
			evtType = events.TypeChainAdvanced
		}
	case ent.Kind == domain.KindReport || ent.Kind == domain.KindFeedback:
		if err := applyReport(&ent, action, who, notes, now); err != nil {
			return ent, err
		}
	case ent.Kind == domain.KindService:
		if err := applyService(&ent, action, payload, notes); err != nil {
			return ent, err
		}
	default:
		return ent, UnsupportedActionError{Key: key}
	}

	ent.UpdatedAt = now.Format(time.RFC3339)
	evt["status"] = ent.Status
	if created != nil {
		created.CreatedAt, created.UpdatedAt = ent.UpdatedAt, ent.UpdatedAt
		if err := e.Repo.InsertEntityTx(ctx, tx, *created); err != nil {
			return ent, fmt.Errorf("insert %s: %w", created.Kind, err)
		}
		if err := e.Events.Append(ctx, tx, events.TypeEntityCreated, string(created.Kind), created.ID, who.ActorID, events.EventPayload{"status": created.Status, "order_id": ent.ID}); err != nil {
			return ent, err
		}
		evt["service_id"] = created.ID
	}
	if err := e.Repo.UpdateEntityTx(ctx, tx, ent); err != nil {
		return ent, err
	}
	if err := e.Events.Append(ctx, tx, evtType, string(ent.Kind), ent.ID, who.ActorID, evt); err != nil {
		return ent, err
	}
	if err := tx.Commit(); err != nil {
		return ent, err
	}
	e.log().Info("action applied",
		zap.String("entity_id", ent.ID),
		zap.String("action", string(action)),
		zap.String("actor", who.ActorID),
		zap.String("role", string(who.Role)),
		zap.String("status", ent.Status))
	return ent, nil
}

func notesFrom(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	s, _ := payload["notes"].(string)
	return strings.TrimSpace(s)
}
