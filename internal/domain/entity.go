package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EntityKind string

const (
	KindOrder    EntityKind = "order"
	KindReport   EntityKind = "report"
	KindFeedback EntityKind = "feedback"
	KindService  EntityKind = "service"
)

func ParseKind(s string) (EntityKind, bool) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindOrder, KindReport, KindFeedback, KindService:
		return k, true
	}
	return "", false
}

// Status values shared by the hubs.
const (
	StatusOpen             = "open"
	StatusPending          = "pending"
	StatusInProgress       = "in_progress"
	StatusCompleted        = "completed"
	StatusResolved         = "resolved"
	StatusClosed           = "closed"
	StatusCancelled        = "cancelled"
	StatusRejected         = "rejected"
	StatusDelivered        = "delivered"
	StatusServiceCreated   = "service-created"
	StatusPendingWarehouse = "pending_warehouse"
)

// EntityData is the kind-specific part of an entity. The set of
// implementations is closed: *OrderData, *ReportData, *FeedbackData, *ServiceData.
type EntityData interface {
	Kind() EntityKind
}

// Entity is an immutable snapshot as fetched for one decision pass.
type Entity struct {
	ID        string     `json:"id"`
	Kind      EntityKind `json:"kind"`
	Status    string     `json:"status"`
	Lifecycle Lifecycle  `json:"lifecycle"`
	Data      EntityData `json:"data,omitempty"`
	CreatedAt string     `json:"created_at,omitempty"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

// State returns the lifecycle state, treating an unset one as active.
func (e Entity) State() LifecycleState {
	if e.Lifecycle.State == "" {
		return StateActive
	}
	return e.Lifecycle.State
}

func (e Entity) Order() (*OrderData, bool) {
	d, ok := e.Data.(*OrderData)
	return d, ok && d != nil
}

func (e Entity) Service() (*ServiceData, bool) {
	d, ok := e.Data.(*ServiceData)
	return d, ok && d != nil
}

// Acks returns the acknowledgment block of a report or feedback entity.
func (e Entity) Acks() (*AckData, bool) {
	switch d := e.Data.(type) {
	case *ReportData:
		if d == nil {
			return nil, false
		}
		return &d.AckData, true
	case *FeedbackData:
		if d == nil {
			return nil, false
		}
		return &d.AckData, true
	}
	return nil, false
}

// CreatorID is the id of whoever raised the entity, when the kind tracks it.
func (e Entity) CreatorID() string {
	switch d := e.Data.(type) {
	case *OrderData:
		return d.CreatorID
	case *ReportData:
		return d.CreatorID
	case *FeedbackData:
		return d.CreatorID
	case *ServiceData:
		return d.ManagerID
	}
	return ""
}

type OrderMetadata struct {
	WarehouseID string `json:"warehouse_id,omitempty"`
	CrewID      string `json:"crew_id,omitempty"`
}

type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type OrderData struct {
	OrderType          string        `json:"order_type" enum:"product,service"`
	CreatorID          string        `json:"creator_id,omitempty"`
	CenterID           string        `json:"center_id,omitempty"`
	CustomerID         string        `json:"customer_id,omitempty"`
	ContractorID       string        `json:"contractor_id,omitempty"`
	FulfilledByID      string        `json:"fulfilled_by_id,omitempty"`
	AssignedWarehouse  string        `json:"assigned_warehouse,omitempty"`
	Metadata           OrderMetadata `json:"metadata"`
	AvailableActions   []string      `json:"available_actions,omitempty"`
	Approvals          Chain         `json:"approvals,omitempty"`
	Requestor          string        `json:"requestor,omitempty"`
	Destination        string        `json:"destination,omitempty"`
	Availability       Window        `json:"availability"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	RejectionReason    string        `json:"rejection_reason,omitempty"`
	ServiceID          string        `json:"service_id,omitempty"`
}

func (*OrderData) Kind() EntityKind { return KindOrder }

type Acknowledgment struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type AckData struct {
	CreatorID              string           `json:"creator_id,omitempty"`
	RequiredAcknowledgers  []string         `json:"required_acknowledgers,omitempty"`
	Acknowledgments        []Acknowledgment `json:"acknowledgments,omitempty"`
	AcknowledgmentComplete bool             `json:"acknowledgment_complete"`
	ResolvedBy             string           `json:"resolved_by,omitempty"`
	Resolution             string           `json:"resolution,omitempty"`
}

type ReportData struct {
	AckData
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (*ReportData) Kind() EntityKind { return KindReport }

type FeedbackData struct {
	AckData
	Rating int `json:"rating,omitempty"`
}

func (*FeedbackData) Kind() EntityKind { return KindFeedback }

type ServiceData struct {
	OrderID      string   `json:"order_id,omitempty"`
	ManagerID    string   `json:"manager_id,omitempty"`
	CenterID     string   `json:"center_id,omitempty"`
	AssignedCrew []string `json:"assigned_crew,omitempty"`
	Availability Window   `json:"availability"`
}

func (*ServiceData) Kind() EntityKind { return KindService }

// NewData returns an empty variant for the kind.
func NewData(kind EntityKind) (EntityData, error) {
	switch kind {
	case KindOrder:
		return &OrderData{}, nil
	case KindReport:
		return &ReportData{}, nil
	case KindFeedback:
		return &FeedbackData{}, nil
	case KindService:
		return &ServiceData{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

type entityJSON struct {
	ID        string          `json:"id"`
	Kind      EntityKind      `json:"kind"`
	Status    string          `json:"status"`
	Lifecycle Lifecycle       `json:"lifecycle"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var raw entityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Entity{
		ID:        raw.ID,
		Kind:      raw.Kind,
		Status:    raw.Status,
		Lifecycle: raw.Lifecycle,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	if raw.Kind == "" {
		return nil
	}
	data, err := NewData(raw.Kind)
	if err != nil {
		return err
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			return fmt.Errorf("decode %s data: %w", raw.Kind, err)
		}
	}
	e.Data = data
	return nil
}
