package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

// Repository is the persistence contract for conversations.
// Every method is scoped by tenant id; there is no cross-tenant read.
type Repository interface {
	// Insert fails with ErrConflict when (tenant, customer phone) already exists.
	Insert(ctx context.Context, c Conversation) error
	FindByAddress(ctx context.Context, tenantID, customerPhone string) (Conversation, error)
	Get(ctx context.Context, tenantID, id string) (Conversation, error)
	List(ctx context.Context, tenantID string, f Filter) ([]Conversation, error)

	// UpdateStatus returns the updated record and the status it replaced.
	UpdateStatus(ctx context.Context, tenantID, id string, status Status, at time.Time) (Conversation, Status, error)
	Touch(ctx context.Context, tenantID, id string, t Touch) (Conversation, error)
	ResetUnread(ctx context.Context, tenantID, id string, at time.Time) (Conversation, error)
	SetNotes(ctx context.Context, tenantID, id, notes string, at time.Time) (Conversation, error)
	// SetCustomerName only fills a NULL name.
	SetCustomerName(ctx context.Context, tenantID, id, name string, at time.Time) (Conversation, error)
}

// Store owns the conversation lifecycle.
type Store struct {
	repo  Repository
	clock func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, clock: time.Now}
}

// FindOrCreate returns the conversation for (tenant, address), creating it with status new.
// A resolved conversation is reopened (persisted as new) before it is returned.
func (s *Store) FindOrCreate(ctx context.Context, tenantID, customerPhone, customerName string) (Conversation, bool, error) {
	customerPhone = strings.TrimSpace(customerPhone)
	if tenantID == "" || customerPhone == "" {
		return Conversation{}, false, ErrInvalidInput
	}
	customerName = strings.TrimSpace(customerName)

	c, err := s.repo.FindByAddress(ctx, tenantID, customerPhone)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		c, err = s.create(ctx, tenantID, customerPhone, customerName)
		if err != nil {
			return Conversation{}, false, err
		}
		created = true
	default:
		return Conversation{}, false, err
	}

	now := s.clock().UTC()
	if c.Status == StatusResolved {
		c, _, err = s.repo.UpdateStatus(ctx, tenantID, c.ID, StatusNew, now)
		if err != nil {
			return Conversation{}, false, err
		}
	}
	if customerName != "" && c.CustomerName == nil {
		c, err = s.repo.SetCustomerName(ctx, tenantID, c.ID, customerName, now)
		if err != nil {
			return Conversation{}, false, err
		}
	}
	return c, created, nil
}

func (s *Store) create(ctx context.Context, tenantID, customerPhone, customerName string) (Conversation, error) {
	now := s.clock().UTC()
	c := Conversation{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		CustomerPhone: customerPhone,
		Status:        StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if customerName != "" {
		c.CustomerName = &customerName
	}

	err := s.repo.Insert(ctx, c)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Conversation{}, err
	}
	// Lost the race to a concurrent delivery; the winner's row is authoritative.
	return s.repo.FindByAddress(ctx, tenantID, customerPhone)
}

// TouchOnInbound records a customer message: preview, timestamp, unread+1.
func (s *Store) TouchOnInbound(ctx context.Context, c Conversation, preview string, at time.Time) (Conversation, error) {
	return s.touch(ctx, c, preview, at, 1)
}

// TouchOnOutbound records an agent or bot message: preview and timestamp only.
func (s *Store) TouchOnOutbound(ctx context.Context, c Conversation, preview string, at time.Time) (Conversation, error) {
	return s.touch(ctx, c, preview, at, 0)
}

func (s *Store) touch(ctx context.Context, c Conversation, preview string, at time.Time, unread int) (Conversation, error) {
	if at.IsZero() {
		at = s.clock()
	}
	return s.repo.Touch(ctx, c.TenantID, c.ID, Touch{
		Preview:     utils.TruncateRunes(preview, PreviewRunes),
		At:          at.UTC(),
		UnreadDelta: unread,
	})
}

// SetStatus persists a validated transition. changed is false when the status was already set.
func (s *Store) SetStatus(ctx context.Context, tenantID, id string, status Status) (Conversation, bool, error) {
	if !status.Valid() {
		return Conversation{}, false, ErrInvalidStatus
	}
	c, prev, err := s.repo.UpdateStatus(ctx, tenantID, id, status, s.clock().UTC())
	if err != nil {
		return Conversation{}, false, err
	}
	return c, prev != status, nil
}

func (s *Store) UpdateNotes(ctx context.Context, tenantID, id, notes string) (Conversation, error) {
	return s.repo.SetNotes(ctx, tenantID, id, notes, s.clock().UTC())
}

// MarkRead resets the unread counter.
func (s *Store) MarkRead(ctx context.Context, tenantID, id string) (Conversation, error) {
	return s.repo.ResetUnread(ctx, tenantID, id, s.clock().UTC())
}

func (s *Store) Get(ctx context.Context, tenantID, id string) (Conversation, error) {
	if tenantID == "" || id == "" {
		return Conversation{}, ErrNotFound
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns conversations ordered by most recent activity.
func (s *Store) List(ctx context.Context, tenantID string, f Filter) ([]Conversation, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, tenantID, f)
}
