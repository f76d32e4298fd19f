package engine

import (
	"context"
	"strings"

	"opsportal/internal/domain"
	"opsportal/internal/policy"
	"opsportal/internal/repo"
)

// Session is the engine bound to one caller. It is the fetch and execute
// collaborator the gateway talks to.
type Session struct {
	Engine   Engine
	Identity domain.Identity
}

func (e Engine) Session(who domain.Identity) Session {
	return Session{Engine: e, Identity: who}
}

// Fetch loads the entity and fills in the order actions the backend offers
// this caller. An empty id returns nothing.
func (s Session) Fetch(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	ent, err := s.Engine.Repo.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if kind != "" && ent.Kind != kind {
		return nil, repo.ErrNotFound
	}
	if order, ok := ent.Order(); ok {
		pctx := policy.For(&ent, s.Identity.ActorID)
		order.AvailableActions = orderLabels(ent, order, s.Identity, func(a domain.Action) bool {
			return policy.Can(ent.Kind, a, s.Identity.Role, pctx)
		})
	}
	return &ent, nil
}

func (s Session) Execute(ctx context.Context, entityID, actionKey string, payload map[string]any) error {
	_, err := s.Engine.Apply(ctx, s.Identity, entityID, actionKey, payload)
	return err
}
