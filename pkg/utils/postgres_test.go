package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "messages_provider_message_id_key"})

	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "messages_provider_message_id_key") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(err, "conversations_tenant_phone_key") {
		t.Fatalf("expected constraint mismatch")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("x"), "") {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestNullString(t *testing.T) {
	if NullString("").Valid {
		t.Fatalf("expected NULL for empty string")
	}
	if v := NullString("a"); !v.Valid || v.String != "a" {
		t.Fatalf("unexpected %+v", v)
	}
}
