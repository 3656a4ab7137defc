package tenant

import (
	"context"
	"errors"
	"testing"
)

func TestService_CreateAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, Tenant{Name: "Acme", Username: "acme", PhoneNumberID: "PN1"}, "correct-horse")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.PasswordHash == "" || created.PasswordHash == "correct-horse" {
		t.Fatalf("expected id and hashed password: %+v", created)
	}

	got, err := svc.Authenticate(ctx, "acme", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("unexpected tenant %q", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "acme", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestService_CreateRejectsDuplicatesAndWeakInput(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, Tenant{Name: "A", Username: "a"}, "short"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for short password, got %v", err)
	}
	if _, err := svc.Create(ctx, Tenant{Name: "A", Username: "a"}, "long-enough"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, Tenant{Name: "B", Username: "a"}, "long-enough"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected duplicate username rejection, got %v", err)
	}
}

func TestService_MatchVerifyToken(t *testing.T) {
	svc := NewService(NewMemoryRepo(
		Tenant{ID: "t1", VerifyToken: "tok-1"},
		Tenant{ID: "t2", VerifyToken: "tok-2"},
	))
	ctx := context.Background()

	ok, err := svc.MatchVerifyToken(ctx, "tok-2")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, _ = svc.MatchVerifyToken(ctx, "nope")
	if ok {
		t.Fatalf("expected no match")
	}
	ok, _ = svc.MatchVerifyToken(ctx, "")
	if ok {
		t.Fatalf("empty token must never match")
	}
}

func TestService_ByPhoneNumberID(t *testing.T) {
	svc := NewService(NewMemoryRepo(Tenant{ID: "t1", PhoneNumberID: "PN1"}))
	got, err := svc.ByPhoneNumberID(context.Background(), "PN1")
	if err != nil || got.ID != "t1" {
		t.Fatalf("unexpected lookup: %+v %v", got, err)
	}
	if _, err := svc.ByPhoneNumberID(context.Background(), "PN2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
