package interest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesbot/internal/db"
)

// ErrUnknownCustomer is returned when interest operations address a
// customer that does not exist.
var ErrUnknownCustomer = errors.New("unknown customer")

// Level is a customer's interest intensity. The tokens are stored
// verbatim, matching what the conversation analyzer emits.
type Level string

const (
	LevelLow    Level = "bajo"
	LevelMedium Level = "medio"
	LevelHigh   Level = "alto"
)

var levelRank = map[Level]int{LevelLow: 1, LevelMedium: 2, LevelHigh: 3}

// ParseLevel validates an interest level token.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if levelRank[l] == 0 {
		return "", fmt.Errorf("unknown interest level %q", s)
	}
	return l, nil
}

// Kind binds an interest category to its table and entity table. All
// three categories share one implementation parameterized by Kind.
type Kind struct {
	name        string
	table       string
	column      string
	entityTable string
}

var (
	KindProduct    = Kind{"product", "product_interests", "product_id", "products"}
	KindCollection = Kind{"collection", "collection_interests", "collection_id", "collections"}
	KindPromotion  = Kind{"promotion", "promotion_interests", "promotion_id", "promotions"}

	kinds = []Kind{KindProduct, KindCollection, KindPromotion}
)

func (k Kind) String() string { return k.name }

// ParseKind validates an interest category token.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range kinds {
		if k.name == name {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("unknown interest kind %q", s)
}

// Signal is one observed interest: a customer showed some level of
// interest in one entity.
type Signal struct {
	Kind     Kind
	EntityID int64
	Level    Level
}

// Report counts the outcome of one signal batch.
type Report struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
}

// Entry is one active interest as read back for a customer.
type Entry struct {
	Kind      string `json:"kind"`
	EntityID  int64  `json:"entity_id"`
	Name      string `json:"name"`
	Level     Level  `json:"level"`
	UpdatedAt string `json:"updated_at"`
}

// Store persists interest levels per customer and entity.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates an interest Store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d, now: time.Now}
}

// CustomerIDByPhone resolves a phone number to its customer id.
func (s *Store) CustomerIDByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE phone = ?`, phone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownCustomer
	}
	if err != nil {
		return 0, fmt.Errorf("looking up customer: %w", err)
	}
	return id, nil
}

// ApplySignals records a batch of interest signals for one customer in
// a single transaction. A signal inserts a new interest, raises or
// lowers an existing one, or does nothing when the level is unchanged.
// Malformed signals and signals against missing or inactive entities
// are counted as rejected; they never fail the batch.
func (s *Store) ApplySignals(ctx context.Context, customerID int64, signals []Signal) (Report, error) {
	var report Report
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM customers WHERE id = ?`, customerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownCustomer
		}
		if err != nil {
			return fmt.Errorf("looking up customer: %w", err)
		}

		stamp := s.now().UTC().Format(time.DateTime)
		for _, sig := range signals {
			if err := s.applyOne(ctx, tx, customerID, sig, stamp, &report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Store) applyOne(ctx context.Context, tx *sql.Tx, customerID int64, sig Signal, stamp string, report *Report) error {
	if levelRank[sig.Level] == 0 || sig.Kind.table == "" || sig.EntityID <= 0 {
		report.Rejected++
		return nil
	}

	var exists int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %s WHERE id = ? AND active = 1`, sig.Kind.entityTable),
		sig.EntityID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		report.Rejected++
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking %s %d: %w", sig.Kind, sig.EntityID, err)
	}

	var id int64
	var current Level
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, level FROM %s WHERE customer_id = ? AND %s = ? AND active = 1`,
		sig.Kind.table, sig.Kind.column),
		customerID, sig.EntityID).Scan(&id, &current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (customer_id, %s, level, updated_at) VALUES (?, ?, ?, ?)`,
			sig.Kind.table, sig.Kind.column),
			customerID, sig.EntityID, sig.Level, stamp)
		if err != nil {
			return fmt.Errorf("inserting %s interest: %w", sig.Kind, err)
		}
		report.Inserted++
	case err != nil:
		return fmt.Errorf("reading %s interest: %w", sig.Kind, err)
	case current == sig.Level:
		report.Unchanged++
	default:
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET level = ?, updated_at = ? WHERE id = ?`, sig.Kind.table),
			sig.Level, stamp, id)
		if err != nil {
			return fmt.Errorf("updating %s interest: %w", sig.Kind, err)
		}
		report.Updated++
	}
	return nil
}

// ActiveByCustomer returns every active interest for a customer across
// all three categories, with entity names resolved.
func (s *Store) ActiveByCustomer(ctx context.Context, customerID int64) ([]Entry, error) {
	var entries []Entry
	for _, k := range kinds {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT i.%s, e.name, i.level, i.updated_at
			FROM %s i
			JOIN %s e ON e.id = i.%s
			WHERE i.customer_id = ? AND i.active = 1
			ORDER BY i.updated_at DESC, i.id DESC`,
			k.column, k.table, k.entityTable, k.column),
			customerID)
		if err != nil {
			return nil, fmt.Errorf("querying %s interests: %w", k, err)
		}
		for rows.Next() {
			entry := Entry{Kind: k.name}
			if err := rows.Scan(&entry.EntityID, &entry.Name, &entry.Level, &entry.UpdatedAt); err != nil {
				rows.Close()
				return nil, err
			}
			entries = append(entries, entry)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
