package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is what the agent did with a control message.
type Outcome string

const (
	// OutcomeSuccess means a handler ran and a success result was sent.
	OutcomeSuccess Outcome = "success"

	// OutcomeFail means a handler ran and a failure result was sent.
	OutcomeFail Outcome = "fail"

	// OutcomeDropped means the message could not be decoded or routed.
	OutcomeDropped Outcome = "dropped"

	// OutcomeIgnored means a reserved method was received and skipped.
	OutcomeIgnored Outcome = "ignored"
)

// ErrInvalidOutcome is returned when an entry carries an unknown outcome.
var ErrInvalidOutcome = errors.New("invalid journal outcome")

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFail, OutcomeDropped, OutcomeIgnored:
		return true
	default:
		return false
	}
}

// Entry is one journal row.
type Entry struct {
	ID         string
	ReceivedAt time.Time
	Topic      string
	Cmd        string
	CmdID      int64
	Method     string
	RPCID      int64
	Outcome    Outcome
	Detail     string
}

// Repository persists journal entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteRepository stores the journal in the command_journal table.
type SQLiteRepository struct {
	db *sql.DB
}

// newEntryID returns "jrn-" followed by the 32 hex digits of a random UUID.
func newEntryID() string {
	return "jrn-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. ID and ReceivedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if !e.Outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, e.Outcome)
	}
	if e.ID == "" {
		e.ID = newEntryID()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, received_at, topic, cmd, cmd_id, method, rpc_id, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReceivedAt.UTC().Format(time.RFC3339Nano), e.Topic,
		e.Cmd, e.CmdID, e.Method, e.RPCID, string(e.Outcome), e.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. A non-positive
// limit means the default of 50; limits above 500 are clamped.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, received_at, topic, cmd, cmd_id, method, rpc_id, outcome, detail
		 FROM command_journal ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var receivedAt, outcome string
		if err := rows.Scan(&e.ID, &receivedAt, &e.Topic, &e.Cmd, &e.CmdID,
			&e.Method, &e.RPCID, &outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", receivedAt, err)
		}
		e.ReceivedAt = t
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}
