package utils

import (
	"context"
	"testing"
	"time"
)

func TestClaimReleaseScriptCompiles(t *testing.T) {
	if claimReleaseScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestClaimOnce_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := ClaimOnce(ctx, nil, "k", "o", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseClaim(ctx, nil, "k", "o"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
