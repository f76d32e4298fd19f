package server

import (
	"encoding/json"
	"fmt"

	"opsportal/internal/domain"
	"opsportal/internal/gateway"
)

type CreateEntityRequest struct {
	Kind string         `json:"kind" enum:"order,report,feedback,service"`
	ID   string         `json:"id,omitempty"`
	Data map[string]any `json:"data,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type ActionRequest struct {
	Confirmed bool   `json:"confirmed,omitempty" doc:"Answer to the action's confirmation question"`
	Notes     string `json:"notes,omitempty" doc:"Answer to the action's prompt"`
}

type ActionResponse struct {
	Outcome string `json:"outcome" enum:"completed,declined"`
	// Confirm and Prompt echo what a declined action asked for.
	Confirm string        `json:"confirm,omitempty"`
	Prompt  string        `json:"prompt,omitempty"`
	View    *gateway.View `json:"view,omitempty"`
}

type PermissionsResponse struct {
	EntityID string   `json:"entity_id"`
	Kind     string   `json:"kind"`
	Role     string   `json:"role"`
	Actions  []string `json:"actions"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
	Role    string `json:"role" enum:"admin,manager,contractor,customer,center,crew,warehouse"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEntities struct {
	Items []domain.Entity `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// entityData decodes a request body map into the kind's data variant.
func entityData(kind domain.EntityKind, raw map[string]any) (domain.EntityData, error) {
	data, err := domain.NewData(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return data, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buf, data); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", kind, err)
	}
	return data, nil
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
