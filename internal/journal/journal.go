// Package journal records forwarded input events to a SQLite database so a
// session can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gkvm/internal/input"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("journal: closed")

const schema = `
CREATE TABLE IF NOT EXISTS keyboard_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT    NOT NULL,
	recorded_at INTEGER NOT NULL,
	code        INTEGER NOT NULL,
	event_time  INTEGER NOT NULL,
	pressed     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS mouse_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT    NOT NULL,
	recorded_at INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	x           INTEGER NOT NULL,
	y           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS keyboard_events_session ON keyboard_events(session);
CREATE INDEX IF NOT EXISTS mouse_events_session ON mouse_events(session);
`

// Journal appends events for one session.
type Journal struct {
	db      *sql.DB
	session string
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

// Counts is the number of rows a session has written.
type Counts struct {
	Keyboard int64
	Mouse    int64
}

// Open opens or creates the database at path and tags every row with session.
func Open(path, session string) (*Journal, error) {
	if session == "" {
		return nil, errors.New("journal: session is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, session: session, now: time.Now}, nil
}

// Session returns the session identifier rows are tagged with.
func (j *Journal) Session() string {
	return j.session
}

// RecordKeyboard appends one keyboard event.
func (j *Journal) RecordKeyboard(ev input.KeyboardEvent) error {
	return j.exec(
		`INSERT INTO keyboard_events (session, recorded_at, code, event_time, pressed) VALUES (?, ?, ?, ?, ?)`,
		j.session, j.now().UnixMilli(), int64(ev.Code), int64(ev.Time), ev.Pressed,
	)
}

// RecordMouse appends one mouse event.
func (j *Journal) RecordMouse(ev input.MouseEvent) error {
	return j.exec(
		`INSERT INTO mouse_events (session, recorded_at, kind, x, y) VALUES (?, ?, ?, ?, ?)`,
		j.session, j.now().UnixMilli(), ev.Kind.String(), int64(ev.X), int64(ev.Y),
	)
}

// KeyboardForwarder adapts the journal to a keyboard worker.
func (j *Journal) KeyboardForwarder() input.Forwarder[input.KeyboardEvent] {
	return input.ForwarderFunc[input.KeyboardEvent](j.RecordKeyboard)
}

// MouseForwarder adapts the journal to a mouse worker.
func (j *Journal) MouseForwarder() input.Forwarder[input.MouseEvent] {
	return input.ForwarderFunc[input.MouseEvent](j.RecordMouse)
}

// Counts returns how many rows this session has recorded.
func (j *Journal) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := j.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM keyboard_events WHERE session = ?),
			(SELECT COUNT(*) FROM mouse_events WHERE session = ?)`,
		j.session, j.session)
	if err := row.Scan(&c.Keyboard, &c.Mouse); err != nil {
		return Counts{}, fmt.Errorf("count journal rows: %w", err)
	}
	return c, nil
}

// Keyboard returns the session's keyboard events in insertion order.
func (j *Journal) Keyboard(ctx context.Context) ([]input.KeyboardEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT code, event_time, pressed FROM keyboard_events WHERE session = ? ORDER BY id`, j.session)
	if err != nil {
		return nil, fmt.Errorf("query keyboard events: %w", err)
	}
	defer rows.Close()

	var out []input.KeyboardEvent
	for rows.Next() {
		var code, tm int64
		var ev input.KeyboardEvent
		if err := rows.Scan(&code, &tm, &ev.Pressed); err != nil {
			return nil, err
		}
		ev.Code, ev.Time = uint32(code), uint32(tm)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close releases the database. Further writes return ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func (j *Journal) exec(query string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if _, err := j.db.Exec(query, args...); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}
