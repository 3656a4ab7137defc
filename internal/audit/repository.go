package audit

import (
	"context"
	"database/sql"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

// PostgresRepo writes to audit_events. The table should carry an INSERT-only policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, tenant_id, type, actor, conversation_id, message_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	var meta any
	if e.Metadata != "" {
		meta = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.Type,
		e.Actor,
		utils.NullString(e.ConversationID),
		utils.NullString(e.MessageID),
		e.Message,
		meta,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	const q = `
SELECT id, tenant_id, type, actor, conversation_id, message_id, message, metadata, created_at
FROM audit_events
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e         Event
			convID    sql.NullString
			messageID sql.NullString
			metadata  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.Actor, &convID, &messageID, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ConversationID = convID.String
		e.MessageID = messageID.String
		e.Metadata = metadata.String
		out = append(out, e)
	}
	return out, rows.Err()
}
