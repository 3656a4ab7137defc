package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// PostgresRepo stores templates with buttons as JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const tplColumns = `id, tenant_id, name, body, type, buttons, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (Template, error) {
	var (
		t       Template
		buttons []byte
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Body, &t.Type, &buttons, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, err
	}
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &t.Buttons); err != nil {
			return Template{}, err
		}
	}
	return t, nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Template, error) {
	q := `SELECT ` + tplColumns + ` FROM templates WHERE tenant_id = $1 AND id = $2`
	return scanTemplate(r.db.QueryRowContext(ctx, q, tenantID, id))
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string) ([]Template, error) {
	q := `SELECT ` + tplColumns + ` FROM templates WHERE tenant_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Insert(ctx context.Context, t Template) error {
	buttons, err := json.Marshal(t.Buttons)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO templates (id, tenant_id, name, body, type, buttons, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err = r.db.ExecContext(ctx, q, t.ID, t.TenantID, t.Name, t.Body, t.Type, buttons, t.CreatedAt, t.UpdatedAt)
	return err
}

// MemoryRepo is an in-memory template repository.
type MemoryRepo struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewMemoryRepo(seed ...Template) *MemoryRepo {
	r := &MemoryRepo{templates: make(map[string]Template)}
	for _, t := range seed {
		r.templates[t.ID] = t
	}
	return r
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok || t.TenantID != tenantID {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string) ([]Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Template
	for _, t := range r.templates {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Insert(ctx context.Context, t Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; ok {
		return ErrInvalidTemplate
	}
	r.templates[t.ID] = t
	return nil
}
