package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/bot"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/media"
	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/notify"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/tasks"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
)

type sent struct {
	To      string
	Payload whatsapp.Payload
}

type fakeGateway struct {
	mu    sync.Mutex
	sends []sent
	fail  error
	n     int
}

func (g *fakeGateway) Send(ctx context.Context, creds whatsapp.Credentials, to string, p whatsapp.Payload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, sent{To: to, Payload: p})
	if g.fail != nil {
		return "", g.fail
	}
	g.n++
	return "wamid.out." + string(rune('a'+g.n)), nil
}

func (g *fakeGateway) Sent() []sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sent(nil), g.sends...)
}

type fakeRelay struct {
	fail error
}

func (r fakeRelay) Relay(ctx context.Context, creds whatsapp.Credentials, tenantID string, ref whatsapp.InboundMedia) (media.Result, error) {
	if r.fail != nil {
		return media.Result{}, r.fail
	}
	return media.Result{URL: "https://cdn.test/" + ref.ID + ".jpg", Filename: ref.ID + ".jpg", MIMEType: "image/jpeg"}, nil
}

func (r fakeRelay) Store(ctx context.Context, tenantID string, data []byte, declaredMIME, filename string) (media.Result, error) {
	return media.Result{URL: "https://cdn.test/" + filename, Filename: filename, MIMEType: declaredMIME, Data: data}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(ctx context.Context, e realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Types() []realtime.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) Messages() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []message.Message
	for _, e := range r.events {
		if e.Type == realtime.EventMessageNew {
			out = append(out, *e.Message)
		}
	}
	return out
}

type notifications struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *notifications) NotifyAgent(ctx context.Context, x notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
	return nil
}

type fixture struct {
	svc      *Service
	gateway  *fakeGateway
	events   *recorder
	convs    *conversation.MemoryRepo
	msgs     *message.MemoryRepo
	tasks    *tasks.LocalDispatcher
	audit    *audit.MemoryRepo
	notified *notifications
	tenant   tenant.Tenant
}

func ref(s string) *string { return &s }

func newFixture(t *testing.T, tn tenant.Tenant, templates ...template.Template) *fixture {
	t.Helper()
	f := &fixture{
		gateway:  &fakeGateway{},
		events:   &recorder{},
		convs:    conversation.NewMemoryRepo(),
		msgs:     message.NewMemoryRepo(),
		tasks:    tasks.NewLocalDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second),
		audit:    audit.NewMemoryRepo(),
		notified: &notifications{},
		tenant:   tn,
	}
	tplSvc := template.NewService(template.NewMemoryRepo(templates...))
	svc, err := NewService(Deps{
		Tenants:       tenant.NewService(tenant.NewMemoryRepo(tn)),
		Conversations: conversation.NewStore(f.convs),
		Messages:      message.NewStore(f.msgs),
		Templates:     tplSvc,
		Bot:           bot.NewEngine(tplSvc),
		Gateway:       f.gateway,
		Media:         fakeRelay{},
		Events:        f.events,
		Tasks:         f.tasks,
		Notifier:      f.notified,
		Audit:         audit.NewService(f.audit),
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	svc.RegisterTasks(f.tasks)
	f.svc = svc
	return f
}

func baseTenant() tenant.Tenant {
	return tenant.Tenant{ID: "t1", Name: "Acme", AccessToken: "tok", PhoneNumberID: "pn1"}
}

func textIn(id, from, body string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{
		PhoneNumberID:     "pn1",
		ProviderMessageID: id,
		From:              from,
		ProfileName:       "Sam",
		Timestamp:         time.Now().Add(-time.Second).UTC(),
		Kind:              whatsapp.KindText,
		Text:              body,
	}
}

func buttonIn(id, from, replyID, title string) whatsapp.InboundMessage {
	in := textIn(id, from, title)
	in.Kind = whatsapp.KindButtonReply
	in.Reply = &whatsapp.ButtonReply{ID: replyID, Title: title}
	return in
}

func (f *fixture) onlyConversation(t *testing.T) conversation.Conversation {
	t.Helper()
	list, err := f.convs.List(context.Background(), f.tenant.ID, conversation.Filter{Limit: 10})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected exactly one conversation, got %d err=%v", len(list), err)
	}
	return list[0]
}

func equalTypes(got, want []realtime.EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestHandleInbound_BotDisabledNewCustomer(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()

	if err := f.svc.HandleInbound(ctx, f.tenant, textIn("wamid.1", "15550001", "hello")); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	c := f.onlyConversation(t)
	if c.Status != conversation.StatusNew || c.UnreadCount != 1 || c.LastMessage != "hello" {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if c.CustomerName == nil || *c.CustomerName != "Sam" {
		t.Fatalf("expected profile name stored")
	}
	msgs := f.msgs.All(c.ID)
	if len(msgs) != 1 || msgs[0].Sender != message.SenderCustomer || msgs[0].Type != message.TypeText {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if len(f.gateway.Sent()) != 0 {
		t.Fatalf("expected no outbound sends")
	}
	want := []realtime.EventType{realtime.EventMessageNew, realtime.EventConversationUpdated}
	if got := f.events.Types(); !equalTypes(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestHandleInbound_WelcomeTemplateSentBeforeInbound(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	tn.WelcomeTemplateID = ref("welcome")
	f := newFixture(t, tn, template.Template{ID: "welcome", TenantID: "t1", Name: "Welcome", Body: "Hi, reply 1 for sales", Type: template.TypeText})
	ctx := context.Background()

	if err := f.svc.HandleInbound(ctx, tn, textIn("wamid.1", "15550001", "hello")); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	sends := f.gateway.Sent()
	if len(sends) != 1 {
		t.Fatalf("expected one send, got %d", len(sends))
	}
	if txt, ok := sends[0].Payload.(whatsapp.Text); !ok || txt.Body != "Hi, reply 1 for sales" || sends[0].To != "15550001" {
		t.Fatalf("unexpected send %+v", sends[0])
	}

	c := f.onlyConversation(t)
	if c.Status != conversation.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status)
	}
	msgs := f.msgs.All(c.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	var agent int
	for _, m := range msgs {
		if m.Sender == message.SenderAgent {
			agent++
			if m.ProviderMessageID == nil || m.Content != "Hi, reply 1 for sales" {
				t.Fatalf("unexpected bot message %+v", m)
			}
		}
	}
	if agent != 1 {
		t.Fatalf("expected exactly one agent message, got %d", agent)
	}

	fanned := f.events.Messages()
	if len(fanned) != 2 || fanned[0].Sender != message.SenderAgent || fanned[1].Sender != message.SenderCustomer {
		t.Fatalf("expected send-then-inbound order, got %+v", fanned)
	}
}

func TestHandleInbound_ProviderFailureRecordsNothingForBot(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	tn.WelcomeTemplateID = ref("welcome")
	f := newFixture(t, tn, template.Template{ID: "welcome", TenantID: "t1", Name: "Welcome", Body: "Hi", Type: template.TypeText})
	f.gateway.fail = &whatsapp.ProviderError{HTTPStatus: 400, Code: 131030, Message: "recipient not allowed"}

	if err := f.svc.HandleInbound(context.Background(), tn, textIn("wamid.1", "15550001", "hello")); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	c := f.onlyConversation(t)
	if c.Status != conversation.StatusNew {
		t.Fatalf("status must not change on failed send, got %s", c.Status)
	}
	msgs := f.msgs.All(c.ID)
	if len(msgs) != 1 || msgs[0].Sender != message.SenderCustomer {
		t.Fatalf("expected only the customer message, got %+v", msgs)
	}
	evs := f.audit.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeBotSendFailed {
		t.Fatalf("expected bot failure audit, got %+v", evs)
	}
}

func TestHandleInbound_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()
	in := textIn("wamid.dup", "15550001", "hello")

	for i := 0; i < 3; i++ {
		if err := f.svc.HandleInbound(ctx, f.tenant, in); err != nil {
			t.Fatalf("inbound %d: %v", i, err)
		}
	}
	c := f.onlyConversation(t)
	if n := len(f.msgs.All(c.ID)); n != 1 {
		t.Fatalf("expected one message, got %d", n)
	}
	if c.UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", c.UnreadCount)
	}
}

func TestHandleInbound_ConcurrentFirstMessagesShareConversation(t *testing.T) {
	f := newFixture(t, baseTenant())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := textIn("wamid.c"+string(rune('a'+i)), "15550001", "hi")
			if err := f.svc.HandleInbound(context.Background(), f.tenant, in); err != nil {
				t.Errorf("inbound: %v", err)
			}
		}(i)
	}
	wg.Wait()

	c := f.onlyConversation(t)
	if n := len(f.msgs.All(c.ID)); n != 16 {
		t.Fatalf("expected 16 messages, got %d", n)
	}
}

func TestHandleInbound_ResolvedConversationReopensBeforeBot(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	tn.WelcomeTemplateID = ref("welcome")
	f := newFixture(t, tn, template.Template{ID: "welcome", TenantID: "t1", Name: "Welcome", Body: "Welcome back", Type: template.TypeText})
	ctx := context.Background()

	tn.BotEnabled = false
	if err := f.svc.HandleInbound(ctx, tn, textIn("wamid.1", "15550001", "first")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	c := f.onlyConversation(t)
	if _, err := f.svc.SetStatus(ctx, "t1", c.ID, conversation.StatusResolved, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	tn.BotEnabled = true
	if err := f.svc.HandleInbound(ctx, tn, textIn("wamid.2", "15550001", "again")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	sends := f.gateway.Sent()
	if len(sends) != 1 {
		t.Fatalf("expected welcome after reopen, got %d sends", len(sends))
	}
	if got := f.onlyConversation(t).Status; got != conversation.StatusInProgress {
		t.Fatalf("expected in_progress after welcome, got %s", got)
	}
}

func TestHandleInbound_ButtonRoutesToNextTemplate(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	menu := template.Template{
		ID: "menu", TenantID: "t1", Name: "Menu", Body: "Pick one", Type: template.TypeInteractive,
		Buttons: []template.Button{{Label: "Sales", NextTemplateID: ref("sales")}, {Label: "Human", NextTemplateID: ref("human")}},
	}
	sales := template.Template{ID: "sales", TenantID: "t1", Name: "Sales", Body: "Sales here", Type: template.TypeText}
	human := template.Template{ID: "human", TenantID: "t1", Name: "Human", Body: "Connecting you", Type: template.TypeContactAgent}
	f := newFixture(t, tn, menu, sales, human)
	ctx := context.Background()

	if err := f.svc.HandleInbound(ctx, tn, buttonIn("wamid.1", "15550001", "sales", "Sales")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	sends := f.gateway.Sent()
	if len(sends) != 1 {
		t.Fatalf("expected one send, got %d", len(sends))
	}
	if txt, ok := sends[0].Payload.(whatsapp.Text); !ok || txt.Body != "Sales here" {
		t.Fatalf("expected sales template, got %+v", sends[0].Payload)
	}

	if err := f.svc.HandleInbound(ctx, tn, buttonIn("wamid.2", "15550001", "human", "Human")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	f.tasks.Wait()

	f.notified.mu.Lock()
	got := len(f.notified.got)
	f.notified.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected one agent notification, got %d", got)
	}
	if c := f.onlyConversation(t); c.Status != conversation.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status)
	}
}

func TestHandleInbound_ResolveTemplateRequestsRating(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	tn.RatingTemplateID = ref("rate")
	bye := template.Template{ID: "bye", TenantID: "t1", Name: "Bye", Body: "Thanks!", Type: template.TypeResolveConversation}
	rate := template.Template{
		ID: "rate", TenantID: "t1", Name: "Rate", Body: "How did we do?", Type: template.TypeInteractive,
		Buttons: []template.Button{{Label: "Bad"}, {Label: "Good"}},
	}
	f := newFixture(t, tn, bye, rate)

	if err := f.svc.HandleInbound(context.Background(), tn, buttonIn("wamid.1", "15550001", "bye", "Done")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	f.tasks.Wait()

	sends := f.gateway.Sent()
	if len(sends) != 2 {
		t.Fatalf("expected template + rating sends, got %d", len(sends))
	}
	rating, ok := sends[1].Payload.(whatsapp.Interactive)
	if !ok || len(rating.Buttons) != 2 || rating.Buttons[1].ID != bot.RatingPrefix+"2" {
		t.Fatalf("unexpected rating payload %+v", sends[1].Payload)
	}
	c := f.onlyConversation(t)
	if c.Status != conversation.StatusResolved {
		t.Fatalf("expected resolved, got %s", c.Status)
	}

	if err := f.svc.HandleInbound(context.Background(), tn, buttonIn("wamid.2", "15550001", bot.RatingPrefix+"2", "Good")); err != nil {
		t.Fatalf("rating reply: %v", err)
	}
	var ratings int
	for _, e := range f.audit.Events() {
		if e.Type == audit.EventTypeRating {
			ratings++
		}
	}
	if ratings != 1 {
		t.Fatalf("expected one rating recorded, got %d", ratings)
	}
	if len(f.gateway.Sent()) != 2 {
		t.Fatalf("rating reply must not send a template")
	}
}

func TestHandleInbound_MediaAndUnsupported(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()

	img := textIn("wamid.img", "15550001", "")
	img.Kind = whatsapp.KindImage
	img.Media = &whatsapp.InboundMedia{ID: "media1", MIMEType: "image/jpeg"}
	if err := f.svc.HandleInbound(ctx, f.tenant, img); err != nil {
		t.Fatalf("image: %v", err)
	}

	sticker := textIn("wamid.st", "15550001", "")
	sticker.Kind = whatsapp.KindUnsupported
	sticker.RawType = "sticker"
	if err := f.svc.HandleInbound(ctx, f.tenant, sticker); err != nil {
		t.Fatalf("sticker: %v", err)
	}

	c := f.onlyConversation(t)
	byPID := map[string]message.Message{}
	for _, m := range f.msgs.All(c.ID) {
		byPID[*m.ProviderMessageID] = m
	}
	if m := byPID["wamid.img"]; m.Type != message.TypeImage || m.Content != "https://cdn.test/media1.jpg" || m.Filename == nil {
		t.Fatalf("unexpected image message %+v", m)
	}
	if m := byPID["wamid.st"]; m.Type != message.TypeText || m.Content != "[unsupported message: sticker]" {
		t.Fatalf("unexpected sticker message %+v", m)
	}
}

func TestHandleInbound_MediaUnavailablePlaceholder(t *testing.T) {
	f := newFixture(t, baseTenant())
	f.svc.d.Media = fakeRelay{fail: media.ErrMediaUnavailable}

	in := textIn("wamid.doc", "15550001", "")
	in.Kind = whatsapp.KindDocument
	in.Media = &whatsapp.InboundMedia{ID: "m1"}
	if err := f.svc.HandleInbound(context.Background(), f.tenant, in); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	msgs := f.msgs.All(f.onlyConversation(t).ID)
	if len(msgs) != 1 || msgs[0].Type != message.TypeText || msgs[0].Content != media.Placeholder {
		t.Fatalf("expected placeholder, got %+v", msgs)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()
	if err := f.svc.HandleInbound(ctx, f.tenant, textIn("wamid.1", "15550001", "hello")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	c := f.onlyConversation(t)
	m, err := f.svc.Reply(ctx, "t1", c.ID, ReplyInput{Text: "hi there"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	pid := *m.ProviderMessageID

	if err := f.svc.HandleStatus(ctx, f.tenant, whatsapp.StatusUpdate{ProviderMessageID: "unknown", Status: "read"}); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}
	if err := f.svc.HandleStatus(ctx, f.tenant, whatsapp.StatusUpdate{ProviderMessageID: pid, Status: "read"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := f.svc.HandleStatus(ctx, f.tenant, whatsapp.StatusUpdate{ProviderMessageID: pid, Status: "delivered"}); err != nil {
		t.Fatalf("late status: %v", err)
	}
	if err := f.svc.HandleStatus(ctx, f.tenant, whatsapp.StatusUpdate{ProviderMessageID: pid, Status: "failed"}); err != nil {
		t.Fatalf("failed status: %v", err)
	}

	var statusEvents int
	for _, typ := range f.events.Types() {
		if typ == realtime.EventMessageStatus {
			statusEvents++
		}
	}
	if statusEvents != 1 {
		t.Fatalf("expected one status event, got %d", statusEvents)
	}
	stored, _ := f.msgs.Get(ctx, "t1", m.ID)
	if stored.Status != message.StatusRead {
		t.Fatalf("expected read, got %s", stored.Status)
	}
}

func TestReply_QuotesAndSurfacesProviderErrors(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()
	if err := f.svc.HandleInbound(ctx, f.tenant, textIn("wamid.q", "15550001", "where is my order?")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	c := f.onlyConversation(t)
	customer := f.msgs.All(c.ID)[0]

	m, err := f.svc.Reply(ctx, "t1", c.ID, ReplyInput{Text: "On its way", ReplyToMessageID: customer.ID})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if m.ReplyTo == nil || m.ReplyTo.ID != customer.ID || m.ReplyTo.Sender != message.SenderCustomer {
		t.Fatalf("expected quote snapshot, got %+v", m.ReplyTo)
	}
	last := f.gateway.Sent()[0].Payload.(whatsapp.Text)
	if last.ReplyTo != "wamid.q" {
		t.Fatalf("expected provider context id, got %q", last.ReplyTo)
	}

	if _, err := f.svc.Reply(ctx, "t1", c.ID, ReplyInput{Text: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.Reply(ctx, "t1", "missing", ReplyInput{Text: "x"}); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	f.gateway.fail = &whatsapp.ProviderError{HTTPStatus: 401, Code: 190, Message: "expired"}
	if _, err := f.svc.Reply(ctx, "t1", c.ID, ReplyInput{Text: "x"}); !errors.Is(err, whatsapp.ErrProviderAuth) {
		t.Fatalf("expected ErrProviderAuth, got %v", err)
	}
	if n := len(f.msgs.All(c.ID)); n != 2 {
		t.Fatalf("failed send must not be recorded, got %d messages", n)
	}
}

func TestSetStatus_ResolvedSchedulesRatingWithoutBlocking(t *testing.T) {
	tn := baseTenant()
	tn.RatingTemplateID = ref("rate")
	rate := template.Template{
		ID: "rate", TenantID: "t1", Name: "Rate", Body: "Rate us", Type: template.TypeInteractive,
		Buttons: []template.Button{{Label: "1"}, {Label: "2"}, {Label: "3"}},
	}
	f := newFixture(t, tn, rate)
	ctx := context.Background()
	if err := f.svc.HandleInbound(ctx, tn, textIn("wamid.1", "15550001", "hello")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	c := f.onlyConversation(t)

	f.gateway.mu.Lock()
	done, err := func() (conversation.Conversation, error) {
		defer f.gateway.mu.Unlock()
		return f.svc.SetStatus(ctx, "t1", c.ID, conversation.StatusResolved, "alice")
	}()
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if done.Status != conversation.StatusResolved {
		t.Fatalf("expected resolved, got %s", done.Status)
	}
	f.tasks.Wait()

	sends := f.gateway.Sent()
	if len(sends) != 1 {
		t.Fatalf("expected rating send, got %d", len(sends))
	}
	if _, ok := sends[0].Payload.(whatsapp.Interactive); !ok {
		t.Fatalf("expected interactive rating, got %+v", sends[0].Payload)
	}
	if got := f.onlyConversation(t).Status; got != conversation.StatusResolved {
		t.Fatalf("rating send must not change status, got %s", got)
	}

	if _, err := f.svc.SetStatus(ctx, "t1", c.ID, conversation.Status("closed"), "alice"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSendMedia(t *testing.T) {
	f := newFixture(t, baseTenant())
	f.svc.d.SendMediaByLink = true
	ctx := context.Background()
	if err := f.svc.HandleInbound(ctx, f.tenant, textIn("wamid.1", "15550001", "send the invoice")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	c := f.onlyConversation(t)

	m, err := f.svc.SendMedia(ctx, "t1", c.ID, MediaInput{Data: []byte("%PDF-1.4"), MIMEType: "application/pdf", Filename: "invoice.pdf", Caption: "here"})
	if err != nil {
		t.Fatalf("send media: %v", err)
	}
	if m.Type != message.TypeDocument || m.Filename == nil || *m.Filename != "invoice.pdf" {
		t.Fatalf("unexpected media message %+v", m)
	}
	doc, ok := f.gateway.Sent()[0].Payload.(whatsapp.DocumentLink)
	if !ok || doc.URL != m.Content || doc.Filename != "invoice.pdf" {
		t.Fatalf("expected document link, got %+v", f.gateway.Sent()[0].Payload)
	}

	if _, err := f.svc.SendMedia(ctx, "t1", c.ID, MediaInput{Data: []byte("ID3"), MIMEType: "audio/mpeg", Filename: "note.mp3"}); err != nil {
		t.Fatalf("audio: %v", err)
	}
	if up, ok := f.gateway.Sent()[1].Payload.(whatsapp.MediaUpload); !ok || up.Kind != whatsapp.MediaAudio {
		t.Fatalf("audio must be uploaded, got %+v", f.gateway.Sent()[1].Payload)
	}

	if _, err := f.svc.SendMedia(ctx, "t1", c.ID, MediaInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestInitiate(t *testing.T) {
	tn := baseTenant()
	tn.BotEnabled = true
	tn.WelcomeTemplateID = ref("welcome")
	f := newFixture(t, tn, template.Template{ID: "welcome", TenantID: "t1", Name: "Welcome", Body: "Hi", Type: template.TypeText})
	ctx := context.Background()

	conv, m, err := f.svc.Initiate(ctx, "t1", InitiateInput{Phone: "+1 (555) 000-1234", TemplateName: "order_update"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if conv.CustomerPhone != "15550001234" || conv.Status != conversation.StatusInProgress {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if m.Sender != message.SenderAgent {
		t.Fatalf("unexpected message %+v", m)
	}
	if tpl, ok := f.gateway.Sent()[0].Payload.(whatsapp.TemplateByName); !ok || tpl.Name != "order_update" {
		t.Fatalf("unexpected payload %+v", f.gateway.Sent()[0].Payload)
	}

	// The customer's answer must not trigger the welcome flow.
	if err := f.svc.HandleInbound(ctx, tn, textIn("wamid.1", "15550001234", "thanks")); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	if n := len(f.gateway.Sent()); n != 1 {
		t.Fatalf("expected no bot send after initiate, got %d sends", n)
	}

	if _, _, err := f.svc.Initiate(ctx, "t1", InitiateInput{Phone: "abc", TemplateName: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNotesMarkReadAndListing(t *testing.T) {
	f := newFixture(t, baseTenant())
	ctx := context.Background()
	for _, id := range []string{"wamid.1", "wamid.2"} {
		if err := f.svc.HandleInbound(ctx, f.tenant, textIn(id, "15550001", "ping")); err != nil {
			t.Fatalf("inbound: %v", err)
		}
	}
	c := f.onlyConversation(t)

	if got, err := f.svc.MarkRead(ctx, "t1", c.ID); err != nil || got.UnreadCount != 0 {
		t.Fatalf("mark read: %+v err=%v", got, err)
	}
	if got, err := f.svc.UpdateNotes(ctx, "t1", c.ID, "VIP"); err != nil || got.Notes != "VIP" {
		t.Fatalf("notes: %+v err=%v", got, err)
	}

	page, err := f.svc.ListMessages(ctx, "t1", c.ID, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 1 || !page.HasMore {
		t.Fatalf("unexpected page %+v", page)
	}
	if _, err := f.svc.ListMessages(ctx, "other", c.ID, 1, 10); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("cross-tenant read must be not found, got %v", err)
	}
	if _, err := f.svc.ListConversations(ctx, "t1", conversation.Filter{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]bool{
		"+966 50 123 4567": true,
		"15550001":         true,
		"123":              false,
		"12a4567":          false,
		"1234567890123456": false,
	}
	for in, ok := range cases {
		if _, got := NormalizePhone(in); got != ok {
			t.Fatalf("%q: expected %v", in, ok)
		}
	}
}
