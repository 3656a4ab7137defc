package reporting

import (
	"context"
	"database/sql"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
)

// PostgresRepo reads the conversations and audit_events tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// ListConversations loads only the columns the reports aggregate.
func (r *PostgresRepo) ListConversations(ctx context.Context, tenantID string, from, to time.Time) ([]conversation.Conversation, error) {
	const q = `
SELECT id, status, unread_count, created_at
FROM conversations
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]conversation.Conversation, 0)
	for rows.Next() {
		c := conversation.Conversation{TenantID: tenantID}
		if err := rows.Scan(&c.ID, &c.Status, &c.UnreadCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListAuditEvents(ctx context.Context, tenantID string, from, to time.Time, types ...audit.EventType) ([]audit.Event, error) {
	const q = `
SELECT id, type, actor, conversation_id, metadata, created_at
FROM audit_events
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
  AND (cardinality($4::text[]) = 0 OR type = ANY($4::text[]))
ORDER BY created_at
`
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e        = audit.Event{TenantID: tenantID}
			convID   sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Actor, &convID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ConversationID = convID.String
		e.Metadata = metadata.String
		out = append(out, e)
	}
	return out, rows.Err()
}
