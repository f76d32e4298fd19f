package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"opsportal/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const entityColumns = `id,doc_json`

func decodeEntity(id, doc string) (domain.Entity, error) {
	var e domain.Entity
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return e, fmt.Errorf("decode entity %s: %w", id, err)
	}
	return e, nil
}

func scanEntity(row *sql.Row) (domain.Entity, error) {
	var id, doc string
	err := row.Scan(&id, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entity{}, ErrNotFound
	}
	if err != nil {
		return domain.Entity{}, err
	}
	return decodeEntity(id, doc)
}

func parentOf(e domain.Entity) string {
	if svc, ok := e.Service(); ok {
		return svc.OrderID
	}
	return ""
}

func (r Repo) InsertEntityTx(ctx context.Context, tx *sql.Tx, e domain.Entity) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO entities(id,kind,status,lifecycle_state,doc_json,parent_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Kind, e.Status, e.State(), string(doc), nullable(parentOf(e)), e.CreatedAt, e.UpdatedAt)
	return err
}

// UpdateEntityTx replaces the stored snapshot of an existing entity.
func (r Repo) UpdateEntityTx(ctx context.Context, tx *sql.Tx, e domain.Entity) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE entities SET status=?,lifecycle_state=?,doc_json=?,updated_at=? WHERE id=?`,
		e.Status, e.State(), string(doc), e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return getEntity(ctx, r.DB, id)
}

func (r Repo) GetEntityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Entity, error) {
	return getEntity(ctx, tx, id)
}

func getEntity(ctx context.Context, q queryer, id string) (domain.Entity, error) {
	return scanEntity(q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id=?`, id))
}

type EntityFilters struct {
	Kind     string
	Status   string
	State    string
	ParentID string
	Limit    int
}

func (r Repo) ListEntities(ctx context.Context, f EntityFilters) ([]domain.Entity, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.State != "" {
		clauses = append(clauses, "lifecycle_state=?")
		args = append(args, f.State)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + entityColumns + ` FROM entities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Entity
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		e, err := decodeEntity(id, doc)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountByStatus groups entities of one kind by status, excluding deleted ones.
func (r Repo) CountByStatus(ctx context.Context, kind string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM entities WHERE kind=? AND lifecycle_state<>'deleted' GROUP BY status`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
