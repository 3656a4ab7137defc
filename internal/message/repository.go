package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

const uniqueProviderIDConstraint = "messages_provider_message_id_key"

// PostgresRepo is the messages table repository.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const msgColumns = `id, tenant_id, conversation_id, sender, type, content, filename, provider_message_id,
status, reply_to, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m          Message
		filename   sql.NullString
		providerID sql.NullString
		replyTo    []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ConversationID,
		&m.Sender,
		&m.Type,
		&m.Content,
		&filename,
		&providerID,
		&m.Status,
		&replyTo,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	if filename.Valid {
		m.Filename = &filename.String
	}
	if providerID.Valid {
		m.ProviderMessageID = &providerID.String
	}
	if len(replyTo) > 0 {
		var q Quote
		if err := json.Unmarshal(replyTo, &q); err != nil {
			return Message{}, err
		}
		m.ReplyTo = &q
	}
	return m, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, m Message) error {
	const q = `
INSERT INTO messages (id, tenant_id, conversation_id, sender, type, content, filename,
  provider_message_id, status, reply_to, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	var replyTo []byte
	if m.ReplyTo != nil {
		b, err := json.Marshal(m.ReplyTo)
		if err != nil {
			return err
		}
		replyTo = b
	}
	_, err := r.db.ExecContext(ctx, q,
		m.ID, m.TenantID, m.ConversationID, m.Sender, m.Type, m.Content,
		utils.NullString(deref(m.Filename)), utils.NullString(deref(m.ProviderMessageID)),
		m.Status, replyTo, m.CreatedAt,
	)
	if utils.IsUniqueViolation(err, uniqueProviderIDConstraint) {
		return ErrDuplicateMessage
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Message, error) {
	q := `SELECT ` + msgColumns + ` FROM messages WHERE tenant_id = $1 AND id = $2`
	return scanMessage(r.db.QueryRowContext(ctx, q, tenantID, id))
}

func (r *PostgresRepo) FindByProviderID(ctx context.Context, tenantID, providerMessageID string) (Message, error) {
	q := `SELECT ` + msgColumns + ` FROM messages WHERE tenant_id = $1 AND provider_message_id = $2`
	return scanMessage(r.db.QueryRowContext(ctx, q, tenantID, providerMessageID))
}

func (r *PostgresRepo) AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, status DeliveryStatus) (Message, bool, error) {
	// The rank comparison keeps a late "delivered" from overwriting "read".
	q := `
UPDATE messages
SET status = $3
WHERE tenant_id = $1 AND provider_message_id = $2
  AND (CASE status WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END) < $4
RETURNING ` + msgColumns
	m, err := scanMessage(r.db.QueryRowContext(ctx, q, tenantID, providerMessageID, status, status.Rank()))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Message{}, false, err
	}
	// Either unknown or already at/after status; distinguish for the caller.
	m, err = r.FindByProviderID(ctx, tenantID, providerMessageID)
	if err != nil {
		return Message{}, false, err
	}
	return m, false, nil
}

func (r *PostgresRepo) List(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error) {
	q := `SELECT ` + msgColumns + ` FROM messages
WHERE tenant_id = $1 AND conversation_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, q, tenantID, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
