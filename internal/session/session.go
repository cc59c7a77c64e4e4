package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"salesbot/internal/db"
)

var (
	// ErrUnknownConversation is returned for operations addressing a
	// conversation id that does not exist.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrUnknownCustomer is returned when a phone number has no
	// customer record.
	ErrUnknownCustomer = errors.New("unknown customer")
)

// Manager owns conversation lifecycle: customers are keyed by phone,
// each customer has at most one active conversation, and a
// conversation goes stale after the activity window passes without a
// message.
type Manager struct {
	db     *db.DB
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager with the given inactivity window.
func NewManager(d *db.DB, window time.Duration) *Manager {
	return &Manager{
		db:     d,
		window: window,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// phoneLock serializes inbound handling per phone number, so two
// concurrent messages from the same customer cannot both create a
// conversation.
func (m *Manager) phoneLock(phone string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		m.locks[phone] = l
	}
	return l
}

// InboundResult describes where an inbound message landed.
type InboundResult struct {
	CustomerID          int64 `json:"customer_id"`
	ConversationID      int64 `json:"conversation_id"`
	MessageID           int64 `json:"message_id"`
	CreatedCustomer     bool  `json:"created_customer"`
	CreatedConversation bool  `json:"created_conversation"`
}

// Message is one transcript entry.
type Message struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
	SentAt  string `json:"sent_at"`
}

// RecordInbound stores a customer message, creating the customer on
// first contact and routing the message into the active conversation.
// An active conversation past the inactivity window is finalized and a
// new one started.
func (m *Manager) RecordInbound(ctx context.Context, phone, content string) (InboundResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return InboundResult{}, errors.New("phone is required")
	}
	if strings.TrimSpace(content) == "" {
		return InboundResult{}, errors.New("content is required")
	}

	l := m.phoneLock(phone)
	l.Lock()
	defer l.Unlock()

	now := m.now().UTC()
	stamp := now.Format(time.DateTime)

	var res InboundResult
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM customers WHERE phone = ?`, phone).Scan(&res.CustomerID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out, err := tx.ExecContext(ctx, `
				INSERT INTO customers (phone, name, created_at) VALUES (?, ?, ?)`,
				phone, "Cliente "+phone, stamp)
			if err != nil {
				return fmt.Errorf("creating customer: %w", err)
			}
			res.CustomerID, err = out.LastInsertId()
			if err != nil {
				return err
			}
			res.CreatedCustomer = true
		case err != nil:
			return fmt.Errorf("looking up customer: %w", err)
		}

		convID, err := m.resolveConversation(ctx, tx, res.CustomerID, now, stamp)
		if err != nil {
			return err
		}
		if convID == 0 {
			out, err := tx.ExecContext(ctx, `
				INSERT INTO conversations (customer_id, started_at, last_activity)
				VALUES (?, ?, ?)`, res.CustomerID, stamp, stamp)
			if err != nil {
				return fmt.Errorf("creating conversation: %w", err)
			}
			convID, err = out.LastInsertId()
			if err != nil {
				return err
			}
			res.CreatedConversation = true
		}
		res.ConversationID = convID

		out, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, content, sender, sent_at)
			VALUES (?, ?, 'customer', ?)`, convID, content, stamp)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		res.MessageID, err = out.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET last_activity = ? WHERE id = ?`, stamp, convID)
		return err
	})
	if err != nil {
		return InboundResult{}, err
	}
	return res, nil
}

// resolveConversation returns the id of a still-fresh active
// conversation, finalizing every stale or duplicate active one. A zero
// id means the caller must create a new conversation.
func (m *Manager) resolveConversation(ctx context.Context, tx *sql.Tx, customerID int64, now time.Time, stamp string) (int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, last_activity FROM conversations
		WHERE customer_id = ? AND state = 'active'
		ORDER BY last_activity DESC, id DESC`, customerID)
	if err != nil {
		return 0, fmt.Errorf("querying active conversations: %w", err)
	}

	var keep int64
	var stale []int64
	for rows.Next() {
		var id int64
		var lastActivity string
		if err := rows.Scan(&id, &lastActivity); err != nil {
			rows.Close()
			return 0, err
		}
		last, err := time.Parse(time.DateTime, lastActivity)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("parsing last_activity of conversation %d: %w", id, err)
		}
		if keep == 0 && now.Sub(last) < m.window {
			keep = id
		} else {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET state = 'finalized', ended_at = ? WHERE id = ?`,
			stamp, id); err != nil {
			return 0, fmt.Errorf("finalizing conversation %d: %w", id, err)
		}
	}
	return keep, nil
}

// RecordOutbound appends an agent reply to an existing conversation.
func (m *Manager) RecordOutbound(ctx context.Context, conversationID int64, content string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, errors.New("content is required")
	}
	stamp := m.now().UTC().Format(time.DateTime)

	var msgID int64
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownConversation
		}
		if err != nil {
			return fmt.Errorf("looking up conversation: %w", err)
		}

		out, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, content, sender, sent_at)
			VALUES (?, ?, 'agent', ?)`, conversationID, content, stamp)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		msgID, err = out.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET last_activity = ? WHERE id = ?`, stamp, conversationID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return msgID, nil
}

// Close finalizes a conversation. Closing an already finalized
// conversation is a no-op.
func (m *Manager) Close(ctx context.Context, conversationID int64) error {
	stamp := m.now().UTC().Format(time.DateTime)
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		out, err := tx.ExecContext(ctx, `
			UPDATE conversations SET state = 'finalized', ended_at = ?
			WHERE id = ? AND state = 'active'`, stamp, conversationID)
		if err != nil {
			return fmt.Errorf("finalizing conversation: %w", err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownConversation
		}
		return err
	})
}

// SweepStale finalizes every active conversation whose last activity
// is older than the window. Returns the number finalized.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	now := m.now().UTC()
	cutoff := now.Add(-m.window).Format(time.DateTime)
	stamp := now.Format(time.DateTime)

	var swept int
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		out, err := tx.ExecContext(ctx, `
			UPDATE conversations SET state = 'finalized', ended_at = ?
			WHERE state = 'active' AND last_activity <= ?`, stamp, cutoff)
		if err != nil {
			return fmt.Errorf("sweeping conversations: %w", err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return err
		}
		swept = int(n)
		return nil
	})
	return swept, err
}

// CustomerIDByPhone resolves a phone number to its customer id.
func (m *Manager) CustomerIDByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	err := m.db.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE phone = ?`, phone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownCustomer
	}
	if err != nil {
		return 0, fmt.Errorf("looking up customer: %w", err)
	}
	return id, nil
}

// RecentMessages returns the transcript of the customer's most recent
// conversations, oldest message first.
func (m *Manager) RecentMessages(ctx context.Context, customerID int64, conversations int) ([]Message, error) {
	if conversations <= 0 {
		conversations = 1
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT m.sender, m.content, m.sent_at
		FROM messages m
		WHERE m.conversation_id IN (
			SELECT id FROM conversations
			WHERE customer_id = ?
			ORDER BY started_at DESC, id DESC
			LIMIT ?)
		ORDER BY m.sent_at, m.id`, customerID, conversations)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Sender, &msg.Content, &msg.SentAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
