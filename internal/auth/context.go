package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxTenantID ctxKey = iota
	ctxUsername
)

var ErrNoTenant = errors.New("auth: tenant_id not in context")

func WithIdentity(ctx context.Context, tenantID, username string) context.Context {
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	ctx = context.WithValue(ctx, ctxUsername, username)
	return ctx
}

func TenantID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxTenantID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoTenant
}

func Username(ctx context.Context) string {
	s, _ := ctx.Value(ctxUsername).(string)
	return s
}
