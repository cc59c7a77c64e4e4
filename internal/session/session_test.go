package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesbot/internal/db"
)

func setupManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	clock := &fakeClock{t: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
	m := NewManager(d, 5*time.Minute)
	m.now = clock.Now
	return m, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func activeConversations(t *testing.T, m *Manager, customerID int64) int {
	t.Helper()
	var n int
	err := m.db.QueryRow(
		`SELECT COUNT(*) FROM conversations WHERE customer_id = ? AND state = 'active'`,
		customerID).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInboundCreatesCustomerAndConversation(t *testing.T) {
	m, _ := setupManager(t)

	res, err := m.RecordInbound(context.Background(), "+5215550001", "hola, busco una botella")
	if err != nil {
		t.Fatalf("inbound: %v", err)
	}
	if !res.CreatedCustomer || !res.CreatedConversation {
		t.Errorf("expected new customer and conversation, got %+v", res)
	}

	id, err := m.CustomerIDByPhone(context.Background(), "+5215550001")
	if err != nil {
		t.Fatalf("resolving phone: %v", err)
	}
	if id != res.CustomerID {
		t.Errorf("customer id = %d, want %d", id, res.CustomerID)
	}

	var name string
	if err := m.db.QueryRow(`SELECT name FROM customers WHERE id = ?`, id).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "Cliente +5215550001" {
		t.Errorf("placeholder name = %q", name)
	}
}

func TestInboundReusesFreshConversation(t *testing.T) {
	m, clock := setupManager(t)

	first, err := m.RecordInbound(context.Background(), "+5215550001", "hola")
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)
	second, err := m.RecordInbound(context.Background(), "+5215550001", "sigo aquí")
	if err != nil {
		t.Fatal(err)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("expected reuse of conversation %d, got %d", first.ConversationID, second.ConversationID)
	}
	if second.CreatedConversation || second.CreatedCustomer {
		t.Errorf("unexpected creation flags: %+v", second)
	}
}

func TestInboundRotatesStaleConversation(t *testing.T) {
	m, clock := setupManager(t)

	first, err := m.RecordInbound(context.Background(), "+5215550001", "hola")
	if err != nil {
		t.Fatal(err)
	}

	// Activity at +2min keeps the conversation fresh.
	clock.Advance(2 * time.Minute)
	if _, err := m.RecordInbound(context.Background(), "+5215550001", "una pregunta"); err != nil {
		t.Fatal(err)
	}

	// Six more minutes of silence passes the window.
	clock.Advance(6 * time.Minute)
	third, err := m.RecordInbound(context.Background(), "+5215550001", "volví")
	if err != nil {
		t.Fatal(err)
	}
	if third.ConversationID == first.ConversationID {
		t.Error("stale conversation was reused")
	}
	if !third.CreatedConversation {
		t.Errorf("expected a new conversation, got %+v", third)
	}

	if n := activeConversations(t, m, third.CustomerID); n != 1 {
		t.Errorf("active conversations = %d, want 1", n)
	}

	var state string
	var ended *string
	err = m.db.QueryRow(`SELECT state, ended_at FROM conversations WHERE id = ?`,
		first.ConversationID).Scan(&state, &ended)
	if err != nil {
		t.Fatal(err)
	}
	if state != "finalized" || ended == nil {
		t.Errorf("old conversation state = %s, ended_at = %v", state, ended)
	}
}

func TestOutboundAppendsToConversation(t *testing.T) {
	m, _ := setupManager(t)

	res, err := m.RecordInbound(context.Background(), "+5215550001", "¿tienen botellas?")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordOutbound(context.Background(), res.ConversationID, "sí, de acero y de vidrio"); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	msgs, err := m.RecentMessages(context.Background(), res.CustomerID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != "customer" || msgs[1].Sender != "agent" {
		t.Errorf("unexpected transcript order: %+v", msgs)
	}
}

func TestOutboundUnknownConversation(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.RecordOutbound(context.Background(), 999, "¿hola?")
	if !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("err = %v, want ErrUnknownConversation", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, _ := setupManager(t)

	res, err := m.RecordInbound(context.Background(), "+5215550001", "hola")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(context.Background(), res.ConversationID); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close(context.Background(), res.ConversationID); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := m.Close(context.Background(), 999); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("err = %v, want ErrUnknownConversation", err)
	}
}

func TestSweepStale(t *testing.T) {
	m, clock := setupManager(t)

	if _, err := m.RecordInbound(context.Background(), "+5215550001", "hola"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * time.Minute)
	fresh, err := m.RecordInbound(context.Background(), "+5215550002", "buenas")
	if err != nil {
		t.Fatal(err)
	}

	// The first conversation is now 6 minutes idle, the second 3.
	clock.Advance(3 * time.Minute)
	swept, err := m.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}
	if n := activeConversations(t, m, fresh.CustomerID); n != 1 {
		t.Errorf("fresh conversation was swept")
	}

	// Nothing left past the window.
	swept, err = m.SweepStale(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestUnknownCustomer(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.CustomerIDByPhone(context.Background(), "+5210000000")
	if !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("err = %v, want ErrUnknownCustomer", err)
	}
}
