package engine

import (
	"errors"
	"fmt"
	"strings"

	"opsportal/internal/domain"
)

func applyService(ent *domain.Entity, action domain.Action, payload map[string]any, notes string) error {
	svc, ok := ent.Service()
	if !ok {
		return errors.New("service entity without service data")
	}
	switch action {
	case domain.ActionStart:
		ent.Status = domain.StatusInProgress
		return nil
	case domain.ActionComplete:
		ent.Status = domain.StatusCompleted
		return nil
	case domain.ActionAssignCrew:
		crew, err := crewFrom(payload, notes)
		if err != nil {
			return err
		}
		svc.AssignedCrew = mergeIDs(svc.AssignedCrew, crew)
		return nil
	}
	return UnsupportedActionError{Key: string(action)}
}

// crewFrom reads crew ids from payload["crew"] or a comma separated note.
func crewFrom(payload map[string]any, notes string) ([]string, error) {
	var ids []string
	switch v := payload["crew"].(type) {
	case []string:
		ids = v
	case []any:
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("crew ids must be strings, got %T", x)
			}
			ids = append(ids, s)
		}
	case nil:
		ids = strings.Split(notes, ",")
	default:
		return nil, fmt.Errorf("crew must be a list, got %T", v)
	}
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, ConflictError{Reason: "no crew ids given"}
	}
	return out, nil
}

func mergeIDs(have, add []string) []string {
	out := append([]string(nil), have...)
	for _, id := range add {
		dup := false
		for _, h := range out {
			if domain.SameID(h, id) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}
