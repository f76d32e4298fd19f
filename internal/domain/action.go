package domain

type Action string

const (
	ActionView          Action = "view"
	ActionEdit          Action = "edit"
	ActionArchive       Action = "archive"
	ActionRestore       Action = "restore"
	ActionDelete        Action = "delete"
	ActionAccept        Action = "accept"
	ActionReject        Action = "reject"
	ActionCancel        Action = "cancel"
	ActionCreateService Action = "create_service"
	ActionAcknowledge   Action = "acknowledge"
	ActionResolve       Action = "resolve"
	ActionClose         Action = "close"
	ActionStart         Action = "start"
	ActionComplete      Action = "complete"
	ActionAssignCrew    Action = "assign_crew"
)

// OperationalActions is every action except view, in the order hubs list them.
var OperationalActions = []Action{
	ActionEdit, ActionArchive, ActionRestore, ActionDelete,
	ActionAccept, ActionReject, ActionCreateService, ActionCancel,
	ActionAcknowledge, ActionResolve, ActionClose,
	ActionStart, ActionComplete, ActionAssignCrew,
}

// Lifecycle reports whether the action mutates the lifecycle state.
func (a Action) Lifecycle() bool {
	return a == ActionArchive || a == ActionRestore || a == ActionDelete
}

type Variant string

const (
	VariantPrimary   Variant = "primary"
	VariantSecondary Variant = "secondary"
	VariantDanger    Variant = "danger"
)

// ActionDescriptor is a declarative, unbound action. Builders produce a fresh
// value per call; callers must not mutate it.
type ActionDescriptor struct {
	Key            string         `json:"key"`
	Label          string         `json:"label"`
	Variant        Variant        `json:"variant" enum:"primary,secondary,danger"`
	Confirm        string         `json:"confirm,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CloseOnSuccess bool           `json:"closeOnSuccess"`
}

func NewDescriptor(key, label string, variant Variant) ActionDescriptor {
	return ActionDescriptor{Key: key, Label: label, Variant: variant, CloseOnSuccess: true}
}

// Clone returns a copy whose payload can be modified freely.
func (d ActionDescriptor) Clone() ActionDescriptor {
	out := d
	out.Payload = ClonePayload(d.Payload)
	return out
}

func ClonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
