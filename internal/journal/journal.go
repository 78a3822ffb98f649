// Package journal records every blind decision in SQLite so operators can
// answer "why did the blind move?" after the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexicographically, unlike RFC3339Nano.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrInvalidEntry is returned by Record for an entry without a blind.
var ErrInvalidEntry = errors.New("journal: invalid entry")

// Entry is one evaluated event of one blind.
type Entry struct {
	ID                string          `json:"id"`
	Blind             string          `json:"blind"`
	Source            string          `json:"source"`
	Topic             string          `json:"topic,omitempty"`
	Level             *float64        `json:"level"`
	LevelInverse      *float64        `json:"levelInverse"`
	ReasonCode        int             `json:"reasonCode"`
	ReasonState       string          `json:"reasonState"`
	ReasonDescription string          `json:"reasonDescription"`
	RuleID            int             `json:"ruleId"`
	Mode              int             `json:"mode"`
	OverrideActive    bool            `json:"overrideActive"`
	OverridePriority  int             `json:"overridePriority"`
	Changed           bool            `json:"changed"`
	Control           json.RawMessage `json:"control,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Filter selects journal entries. Zero values mean "any".
type Filter struct {
	Blind       string
	Since       time.Time
	Until       time.Time
	ChangedOnly bool
	Limit       int // default 50, max 500
	Offset      int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries decisions.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository keeps the journal in the decision_journal table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Blind == "" {
		return fmt.Errorf("%w: blind is required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "dec-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var control any
	if len(e.Control) > 0 {
		control = string(e.Control)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO decision_journal (
			id, blind, source, topic, level, level_inverse,
			reason_code, reason_state, reason_description, rule_id, mode,
			override_active, override_priority, changed, control, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Blind, e.Source, nullableString(e.Topic), e.Level, e.LevelInverse,
		e.ReasonCode, e.ReasonState, e.ReasonDescription, e.RuleID, e.Mode,
		e.OverrideActive, e.OverridePriority, e.Changed, control,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching f, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conditions []string
	var args []any
	if f.Blind != "" {
		conditions = append(conditions, "blind = ?")
		args = append(args, f.Blind)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, f.Until.UTC().Format(timeLayout))
	}
	if f.ChangedOnly {
		conditions = append(conditions, "changed = 1")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM decision_journal " + where //nolint:gosec // conditions are placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := `SELECT id, blind, source, topic, level, level_inverse,
		reason_code, reason_state, reason_description, rule_id, mode,
		override_active, override_priority, changed, control, created_at
		FROM decision_journal ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // conditions are placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var topic, control sql.NullString
	var level, inverse sql.NullFloat64
	var createdAt string

	if err := rows.Scan(&e.ID, &e.Blind, &e.Source, &topic, &level, &inverse,
		&e.ReasonCode, &e.ReasonState, &e.ReasonDescription, &e.RuleID, &e.Mode,
		&e.OverrideActive, &e.OverridePriority, &e.Changed, &control, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning journal entry: %w", err)
	}

	e.Topic = topic.String
	if level.Valid {
		e.Level = &level.Float64
	}
	if inverse.Valid {
		e.LevelInverse = &inverse.Float64
	}
	if control.Valid && control.String != "" {
		e.Control = json.RawMessage(control.String)
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// Prune deletes entries older than before and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM decision_journal WHERE created_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return n, nil
}
