package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

const uniqueAddressConstraint = "conversations_tenant_phone_key"

// PostgresRepo is the conversations table repository.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const convColumns = `id, tenant_id, customer_phone, customer_name, status, last_message, last_message_at,
unread_count, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		c      Conversation
		name   sql.NullString
		lastAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.CustomerPhone,
		&name,
		&c.Status,
		&c.LastMessage,
		&lastAt,
		&c.UnreadCount,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	if name.Valid {
		c.CustomerName = &name.String
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, c Conversation) error {
	const q = `
INSERT INTO conversations (id, tenant_id, customer_phone, customer_name, status, last_message,
  unread_count, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '', 0, '', $6, $7)
`
	var name string
	if c.CustomerName != nil {
		name = *c.CustomerName
	}
	_, err := r.db.ExecContext(ctx, q, c.ID, c.TenantID, c.CustomerPhone, utils.NullString(name), c.Status, c.CreatedAt, c.UpdatedAt)
	if utils.IsUniqueViolation(err, uniqueAddressConstraint) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) FindByAddress(ctx context.Context, tenantID, customerPhone string) (Conversation, error) {
	q := `SELECT ` + convColumns + ` FROM conversations WHERE tenant_id = $1 AND customer_phone = $2`
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, customerPhone))
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Conversation, error) {
	q := `SELECT ` + convColumns + ` FROM conversations WHERE tenant_id = $1 AND id = $2`
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, id))
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, f Filter) ([]Conversation, error) {
	q := `SELECT ` + convColumns + ` FROM conversations WHERE tenant_id = $1`
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY COALESCE(last_message_at, created_at) DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, tenantID, id string, status Status, at time.Time) (Conversation, Status, error) {
	var (
		out  Conversation
		prev Status
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Row lock serializes concurrent status changes on one conversation.
		const lock = `SELECT status FROM conversations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lock, tenantID, id).Scan(&prev); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		q := `UPDATE conversations SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2 RETURNING ` + convColumns
		c, err := scanConversation(tx.QueryRowContext(ctx, q, tenantID, id, status, at))
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Conversation{}, "", err
	}
	return out, prev, nil
}

func (r *PostgresRepo) Touch(ctx context.Context, tenantID, id string, t Touch) (Conversation, error) {
	q := `
UPDATE conversations
SET last_message = CASE WHEN last_message_at IS NULL OR $4 >= last_message_at THEN $3 ELSE last_message END,
    last_message_at = GREATEST(COALESCE(last_message_at, $4), $4),
    unread_count = unread_count + $5,
    updated_at = GREATEST(updated_at, $4)
WHERE tenant_id = $1 AND id = $2
RETURNING ` + convColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, id, t.Preview, t.At, t.UnreadDelta))
}

func (r *PostgresRepo) ResetUnread(ctx context.Context, tenantID, id string, at time.Time) (Conversation, error) {
	q := `UPDATE conversations SET unread_count = 0, updated_at = $3 WHERE tenant_id = $1 AND id = $2 RETURNING ` + convColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, id, at))
}

func (r *PostgresRepo) SetNotes(ctx context.Context, tenantID, id, notes string, at time.Time) (Conversation, error) {
	q := `UPDATE conversations SET notes = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2 RETURNING ` + convColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, id, notes, at))
}

func (r *PostgresRepo) SetCustomerName(ctx context.Context, tenantID, id, name string, at time.Time) (Conversation, error) {
	q := `
UPDATE conversations
SET customer_name = COALESCE(customer_name, $3), updated_at = $4
WHERE tenant_id = $1 AND id = $2
RETURNING ` + convColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, tenantID, id, name, at))
}
