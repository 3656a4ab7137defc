package message

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestStore_AppendRejectsDuplicateProviderID(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	ctx := context.Background()

	m := Message{TenantID: "t1", ConversationID: "c1", Sender: SenderCustomer, Type: TypeText, Content: "hi", ProviderMessageID: strPtr("wamid.1")}
	first, err := s.Append(ctx, m)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == "" || first.Status != StatusSent || first.CreatedAt.IsZero() {
		t.Fatalf("expected defaults filled: %+v", first)
	}
	if _, err := s.Append(ctx, m); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	ok, err := s.ExistsByProviderID(ctx, "t1", "wamid.1")
	if err != nil || !ok {
		t.Fatalf("expected existing provider id")
	}
	ok, _ = s.ExistsByProviderID(ctx, "t2", "wamid.1")
	if ok {
		t.Fatalf("provider id lookup must be tenant scoped")
	}
}

func TestStore_AppendWithoutProviderIDNeverCollides(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, Message{TenantID: "t1", ConversationID: "c1", Sender: SenderAgent, Type: TypeText, Content: "x", ProviderMessageID: strPtr("")}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestStore_AppendValidates(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	cases := []Message{
		{ConversationID: "c", Sender: SenderAgent, Type: TypeText},
		{TenantID: "t", Sender: SenderAgent, Type: TypeText},
		{TenantID: "t", ConversationID: "c", Sender: "bot", Type: TypeText},
		{TenantID: "t", ConversationID: "c", Sender: SenderAgent, Type: "sticker"},
	}
	for i, m := range cases {
		if _, err := s.Append(context.Background(), m); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("case %d: expected ErrInvalidMessage, got %v", i, err)
		}
	}
}

func TestStore_StatusIsMonotonic(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	ctx := context.Background()
	_, _ = s.Append(ctx, Message{TenantID: "t1", ConversationID: "c1", Sender: SenderAgent, Type: TypeText, Content: "x", ProviderMessageID: strPtr("wamid.2")})

	m, updated, err := s.UpdateStatusByProviderID(ctx, "t1", "wamid.2", StatusRead)
	if err != nil || !updated || m.Status != StatusRead {
		t.Fatalf("expected read, got %+v updated=%v err=%v", m, updated, err)
	}
	m, updated, err = s.UpdateStatusByProviderID(ctx, "t1", "wamid.2", StatusDelivered)
	if err != nil || updated {
		t.Fatalf("late delivered must be a no-op, updated=%v err=%v", updated, err)
	}
	stored, _ := s.FindByProviderID(ctx, "t1", "wamid.2")
	if stored.Status != StatusRead {
		t.Fatalf("status regressed to %q", stored.Status)
	}
}

func TestStore_StatusForUnknownIDIsNoop(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	_, updated, err := s.UpdateStatusByProviderID(context.Background(), "t1", "wamid.unknown", StatusDelivered)
	if err != nil || updated {
		t.Fatalf("expected silent no-op, got updated=%v err=%v", updated, err)
	}
	_, updated, err = s.UpdateStatusByProviderID(context.Background(), "t1", "wamid.unknown", DeliveryStatus("failed"))
	if err != nil || updated {
		t.Fatalf("untracked status must be ignored")
	}
}

func TestStore_ListPaginatesNewestFirst(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, Message{
			TenantID: "t1", ConversationID: "c1", Sender: SenderCustomer, Type: TypeText,
			Content: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	p1, err := s.List(ctx, "t1", "c1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(p1.Messages) != 2 || !p1.HasMore || p1.Messages[0].Content != "e" || p1.Messages[1].Content != "d" {
		t.Fatalf("unexpected first page: %+v", p1)
	}
	p3, _ := s.List(ctx, "t1", "c1", 3, 2)
	if len(p3.Messages) != 1 || p3.HasMore || p3.Messages[0].Content != "a" {
		t.Fatalf("unexpected last page: %+v", p3)
	}
	empty, _ := s.List(ctx, "t1", "c1", 9, 2)
	if empty.Messages == nil || len(empty.Messages) != 0 {
		t.Fatalf("expected empty non-nil page")
	}
}

func TestStore_ListRejectsOverflowingPage(t *testing.T) {
	s := NewStore(NewMemoryRepo())
	ctx := context.Background()
	if _, err := s.Append(ctx, Message{TenantID: "t1", ConversationID: "c1", Sender: SenderCustomer, Type: TypeText, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := s.List(ctx, "t1", "c1", math.MaxInt/50+2, 50); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if _, err := s.List(ctx, "t1", "c1", math.MaxInt, 1); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for page size 1, got %v", err)
	}

	msgs, err := NewMemoryRepo().List(ctx, "t1", "c1", 10, -5)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("negative offset: got %v %v", msgs, err)
	}
}

func TestQuoteOf(t *testing.T) {
	long := strings.Repeat("x", 150)
	q := QuoteOf(Message{ID: "m1", Sender: SenderCustomer, Type: TypeText, Content: long})
	if q.ID != "m1" || q.Sender != SenderCustomer || len([]rune(q.Content)) != QuoteRunes {
		t.Fatalf("unexpected quote: %+v", q)
	}
	doc := QuoteOf(Message{ID: "m2", Type: TypeDocument, Content: "https://x/y.pdf", Filename: strPtr("invoice.pdf")})
	if doc.Content != "invoice.pdf" {
		t.Fatalf("expected filename for document quote, got %q", doc.Content)
	}
	img := QuoteOf(Message{ID: "m3", Type: TypeImage, Content: "https://x/y.jpg"})
	if img.Content != "[image]" {
		t.Fatalf("unexpected image quote %q", img.Content)
	}
}
