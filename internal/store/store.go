// Package store persists resolved VerseMaps in SQLite so a restarted process
// can answer from its last fetch instead of hitting the source again.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Snapshots follow the same lazy expiry rule as the in-memory cache. Storage
// errors are logged and reported as misses; the store never fails a lookup.
package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/psalter/core/errors"
	"github.com/FocuswithJustin/psalter/core/verses"
	"github.com/FocuswithJustin/psalter/internal/cache"
	"github.com/FocuswithJustin/psalter/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	psalm      INTEGER PRIMARY KEY,
	fetched_at INTEGER NOT NULL,
	digest     TEXT    NOT NULL,
	payload    BLOB    NOT NULL
)`

// maxPayload bounds a decompressed snapshot.
const maxPayload = 4 << 20

// DriverName returns the SQL driver the store was built with.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" or "cgo".
func DriverType() string {
	return driverType
}

// Snapshots is a SQLite-backed cache layer keyed by psalm number.
type Snapshots struct {
	db  *sql.DB
	ttl time.Duration
	now cache.Clock
}

// Option configures Snapshots.
type Option func(*Snapshots)

// WithClock overrides the time source used for expiry.
func WithClock(now cache.Clock) Option {
	return func(s *Snapshots) { s.now = now }
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string, ttl time.Duration, opts ...Option) (*Snapshots, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening snapshot db %s", path)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating snapshot schema")
	}

	if ttl < 0 {
		ttl = 0
	}
	s := &Snapshots{db: db, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Snapshots) Close() error {
	return s.db.Close()
}

// Lookup returns the stored snapshot for psalm and when it was fetched.
func (s *Snapshots) Lookup(psalm int) (*verses.VerseMap, time.Time, bool) {
	if s.ttl == 0 {
		return nil, time.Time{}, false
	}

	var (
		fetchedNanos int64
		digest       string
		payload      []byte
	)
	err := s.db.QueryRow(
		`SELECT fetched_at, digest, payload FROM snapshots WHERE psalm = ?`, psalm,
	).Scan(&fetchedNanos, &digest, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false
	}
	if err != nil {
		logging.Warn("snapshot read failed", "psalm", psalm, "error", err.Error())
		return nil, time.Time{}, false
	}

	fetchedAt := time.Unix(0, fetchedNanos)
	if s.now().Sub(fetchedAt) > s.ttl {
		if _, err := s.db.Exec(`DELETE FROM snapshots WHERE psalm = ? AND fetched_at = ?`, psalm, fetchedNanos); err != nil {
			logging.Warn("snapshot delete failed", "psalm", psalm, "error", err.Error())
		}
		return nil, time.Time{}, false
	}

	entries, err := decodePayload(payload)
	if err != nil {
		logging.Warn("snapshot decode failed", "psalm", psalm, "error", err.Error())
		return nil, time.Time{}, false
	}
	return verses.NewVerseMap(entries, digest, fetchedAt), fetchedAt, true
}

// Store writes a snapshot, replacing any previous one for psalm.
func (s *Snapshots) Store(psalm int, m *verses.VerseMap, at time.Time) {
	if s.ttl == 0 || m == nil || s.now().Sub(at) > s.ttl {
		return
	}
	payload, err := encodePayload(m.Entries())
	if err != nil {
		logging.Warn("snapshot encode failed", "psalm", psalm, "error", err.Error())
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (psalm, fetched_at, digest, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(psalm) DO UPDATE SET fetched_at = excluded.fetched_at, digest = excluded.digest, payload = excluded.payload`,
		psalm, at.UnixNano(), m.Digest(), payload,
	)
	if err != nil {
		logging.Warn("snapshot write failed", "psalm", psalm, "error", err.Error())
	}
}

// Count returns the number of stored snapshots, expired ones included.
func (s *Snapshots) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func encodePayload(entries map[int]string) ([]byte, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}
	return buf.Bytes(), nil
}

func decodePayload(payload []byte) (map[int]string, error) {
	r, err := xz.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "decompressing snapshot")
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxPayload+1))
	if err != nil {
		return nil, errors.Wrap(err, "decompressing snapshot")
	}
	if len(raw) > maxPayload {
		return nil, fmt.Errorf("snapshot payload exceeds %d bytes", maxPayload)
	}
	var entries map[int]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	return entries, nil
}
