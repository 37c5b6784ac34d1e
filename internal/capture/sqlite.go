// ABOUTME: SQLite frame capture database using modernc.org/sqlite
// ABOUTME: Appends frames in arrival order and pages them back out as a replay reader

package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/meshwatch/internal/dispatch"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/replay"
)

// pageSize is how many frames a Cursor loads per query.
const pageSize = 500

// Entry is a stored frame with its position and capture time.
type Entry struct {
	ID         int64
	Frame      replay.Frame
	Source     string
	CapturedAt time.Time
}

// DB is a frame capture database.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the capture database at path. Parent directories are
// created if needed.
func Open(path string) (*DB, error) {
	logger := slog.Default().With("component", "capture")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening capture database: %w", err)
	}
	// a single connection keeps appends strictly ordered
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	d := &DB{db: db, logger: logger, now: time.Now}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := d.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("capture database opened", "path", path)
	return d, nil
}

func (d *DB) createSchema() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS frames (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			event       TEXT NOT NULL,
			data        TEXT NOT NULL,
			captured_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_frames_event ON frames(event);
	`)
	return err
}

// runMigrations upgrades databases written before the source column existed.
func (d *DB) runMigrations() error {
	var exists int
	err := d.db.QueryRow(`SELECT 1 FROM pragma_table_info('frames') WHERE name = 'source'`).Scan(&exists)
	if err == nil {
		return nil
	}
	if _, err := d.db.Exec(`ALTER TABLE frames ADD COLUMN source TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("adding source column to frames: %w", err)
	}
	d.logger.Info("applied migration", "column", "source", "table", "frames")
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	d.logger.Info("closing capture database")
	return d.db.Close()
}

func dataOf(f replay.Frame) string {
	if len(f.Data) == 0 {
		return "null"
	}
	return string(f.Data)
}

// Append stores f and returns its id. source labels where it came from.
func (d *DB) Append(ctx context.Context, f replay.Frame, source string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO frames (event, data, source, captured_at) VALUES (?, ?, ?, ?)`,
		f.Event, dataOf(f), source, d.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting frame: %w", err)
	}
	return res.LastInsertId()
}

// ImportStats summarises an Import.
type ImportStats struct {
	Imported  int
	Malformed int
}

// Import copies every frame from r in one transaction. Malformed frames are
// counted and skipped.
func (d *DB) Import(ctx context.Context, r replay.FrameReader, source string) (ImportStats, error) {
	var stats ImportStats

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (event, data, source, captured_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return stats, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	at := d.now().UTC().Format(time.RFC3339Nano)
	for {
		f, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, replay.ErrMalformedFrame) {
			stats.Malformed++
			d.logger.Warn("skipping frame", "error", err)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("reading frame: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, f.Event, dataOf(f), source, at); err != nil {
			return stats, fmt.Errorf("inserting frame: %w", err)
		}
		stats.Imported++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("committing import: %w", err)
	}
	return stats, nil
}

// Count returns the number of stored frames.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting frames: %w", err)
	}
	return n, nil
}

// Entries returns up to limit frames with id greater than after, oldest
// first.
func (d *DB) Entries(ctx context.Context, after int64, limit int) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, event, data, source, captured_at
		FROM frames
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var data, capturedAt string
		if err := rows.Scan(&e.ID, &e.Frame.Event, &data, &e.Source, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		e.Frame.Data = json.RawMessage(data)
		e.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing captured_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reader returns a replay reader over every stored frame.
func (d *DB) Reader() *Cursor {
	return &Cursor{db: d}
}

// Cursor pages through stored frames in id order. It implements
// replay.FrameReader.
type Cursor struct {
	db      *DB
	after   int64
	pending []Entry
	done    bool
}

// Next returns the next stored frame or io.EOF.
func (c *Cursor) Next(ctx context.Context) (replay.Frame, error) {
	if len(c.pending) == 0 && !c.done {
		page, err := c.db.Entries(ctx, c.after, pageSize)
		if err != nil {
			return replay.Frame{}, err
		}
		c.pending = page
		if len(page) < pageSize {
			c.done = true
		}
	}
	if len(c.pending) == 0 {
		return replay.Frame{}, io.EOF
	}
	e := c.pending[0]
	c.pending = c.pending[1:]
	c.after = e.ID
	return e.Frame, nil
}

// Record subscribes to every event src offers and appends each delivered
// event as a frame. It returns the number of events subscribed.
func (d *DB) Record(ctx context.Context, src dispatch.Source, source string) int {
	n := 0
	for _, event := range src.Events() {
		ok := src.Subscribe(event, func(v rawevent.Value) error {
			f, err := replay.NewFrame(event, v)
			if err != nil {
				return err
			}
			_, err = d.Append(ctx, f, source)
			return err
		})
		if ok {
			n++
		}
	}
	return n
}
