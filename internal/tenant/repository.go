package tenant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

// PostgresRepo stores tenants in the tenants table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const tenantColumns = `id, name, username, password_hash, access_token, phone_number_id, verify_token,
bot_enabled, welcome_template_id, rating_template_id, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

func (r *PostgresRepo) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE phone_number_id = $1`, phoneNumberID)
}

func (r *PostgresRepo) GetByUsername(ctx context.Context, username string) (Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE username = $1`, username)
}

func (r *PostgresRepo) ListVerifyTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT verify_token FROM tenants WHERE verify_token <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Insert(ctx context.Context, t Tenant) error {
	const q = `
INSERT INTO tenants (id, name, username, password_hash, access_token, phone_number_id, verify_token,
  bot_enabled, welcome_template_id, rating_template_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.Name, t.Username, t.PasswordHash, t.AccessToken, t.PhoneNumberID, t.VerifyToken,
		t.BotEnabled, utils.NullString(t.WelcomeTemplate()), utils.NullString(t.RatingTemplate()),
		t.CreatedAt, t.UpdatedAt,
	)
	if utils.IsUniqueViolation(err, "") {
		return ErrInvalidArgument
	}
	return err
}

func (r *PostgresRepo) getOne(ctx context.Context, q string, arg any) (Tenant, error) {
	var (
		t               Tenant
		welcome, rating sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&t.ID,
		&t.Name,
		&t.Username,
		&t.PasswordHash,
		&t.AccessToken,
		&t.PhoneNumberID,
		&t.VerifyToken,
		&t.BotEnabled,
		&welcome,
		&rating,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	if welcome.Valid {
		t.WelcomeTemplateID = &welcome.String
	}
	if rating.Valid {
		t.RatingTemplateID = &rating.String
	}
	return t, nil
}
