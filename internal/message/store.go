package message

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for messages.
type Repository interface {
	// Insert fails with ErrDuplicateMessage when the provider message id is already stored.
	Insert(ctx context.Context, m Message) error
	Get(ctx context.Context, tenantID, id string) (Message, error)
	FindByProviderID(ctx context.Context, tenantID, providerMessageID string) (Message, error)
	// AdvanceStatus moves status forward only; updated is false when nothing changed.
	AdvanceStatus(ctx context.Context, tenantID, providerMessageID string, status DeliveryStatus) (m Message, updated bool, err error)
	// List is newest first.
	List(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error)
}

// Store is the append-only message log.
type Store struct {
	repo  Repository
	clock func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, clock: time.Now}
}

// Append validates and stores m, filling id, timestamp and initial status.
// ErrDuplicateMessage is expected under webhook redelivery and should be tolerated.
func (s *Store) Append(ctx context.Context, m Message) (Message, error) {
	if m.TenantID == "" || m.ConversationID == "" || !m.Type.Valid() {
		return Message{}, ErrInvalidMessage
	}
	if m.Sender != SenderCustomer && m.Sender != SenderAgent {
		return Message{}, ErrInvalidMessage
	}
	if m.ProviderMessageID != nil && *m.ProviderMessageID == "" {
		m.ProviderMessageID = nil
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if m.Status == "" {
		m.Status = StatusSent
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ExistsByProviderID reports whether a message with this provider id is already stored.
func (s *Store) ExistsByProviderID(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}
	_, err := s.repo.FindByProviderID(ctx, tenantID, providerMessageID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) FindByProviderID(ctx context.Context, tenantID, providerMessageID string) (Message, error) {
	if providerMessageID == "" {
		return Message{}, ErrNotFound
	}
	return s.repo.FindByProviderID(ctx, tenantID, providerMessageID)
}

func (s *Store) Get(ctx context.Context, tenantID, id string) (Message, error) {
	if id == "" {
		return Message{}, ErrNotFound
	}
	return s.repo.Get(ctx, tenantID, id)
}

// UpdateStatusByProviderID applies a delivery receipt.
// Unknown ids and backwards transitions are no-ops, reported as updated=false with a nil error.
func (s *Store) UpdateStatusByProviderID(ctx context.Context, tenantID, providerMessageID string, status DeliveryStatus) (Message, bool, error) {
	if status.Rank() == 0 {
		return Message{}, false, nil
	}
	if providerMessageID == "" {
		return Message{}, false, nil
	}
	m, updated, err := s.repo.AdvanceStatus(ctx, tenantID, providerMessageID, status)
	if errors.Is(err, ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return m, updated, nil
}

// List returns one page (1-based) of a conversation, newest first.
func (s *Store) List(ctx context.Context, tenantID, conversationID string, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page-1 > math.MaxInt/pageSize {
		return Page{}, ErrInvalidMessage
	}

	msgs, err := s.repo.List(ctx, tenantID, conversationID, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Page{}, err
	}
	out := Page{Page: page, PageSize: pageSize, Messages: msgs}
	if len(msgs) > pageSize {
		out.HasMore = true
		out.Messages = msgs[:pageSize]
	}
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out, nil
}
