// Package sqlite provides a sqlite-backed directory.Store so multiple agent
// processes on one host can share peer visibility. Uses the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lamwimham/neuroflow/core"
)

// Store implements directory.Store on a sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the peer table at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL mode for concurrent read/write access; busy timeout so writers
	// retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS peers (
			id TEXT PRIMARY KEY,
			name TEXT,
			capabilities TEXT,
			endpoint TEXT,
			status TEXT,
			registered_at TIMESTAMP,
			last_heartbeat TIMESTAMP,
			latency_ms REAL,
			success_rate REAL
		)`)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a peer record.
func (s *Store) Put(rec core.PeerRecord) error {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO peers (id, name, capabilities, endpoint, status, registered_at, last_heartbeat, latency_ms, success_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			capabilities = excluded.capabilities,
			endpoint = excluded.endpoint,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			latency_ms = excluded.latency_ms,
			success_rate = excluded.success_rate`,
		rec.ID, rec.Name, string(caps), rec.Endpoint, string(rec.Status),
		rec.RegisteredAt.UTC(), rec.LastHeartbeat.UTC(), rec.LatencyMs, rec.SuccessRate)
	if err != nil {
		return fmt.Errorf("put peer: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (s *Store) Get(id string) (core.PeerRecord, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, name, capabilities, endpoint, status, registered_at, last_heartbeat, latency_ms, success_rate
		FROM peers WHERE id = ?`, id)
	rec, err := scanPeer(row.Scan)
	if err == sql.ErrNoRows {
		return core.PeerRecord{}, false, nil
	}
	if err != nil {
		return core.PeerRecord{}, false, fmt.Errorf("get peer: %w", err)
	}
	return rec, true, nil
}

// Delete removes the record for id, reporting whether a row existed.
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM peers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete peer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all records in registration order.
func (s *Store) List() ([]core.PeerRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, capabilities, endpoint, status, registered_at, last_heartbeat, latency_ms, success_rate
		FROM peers ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var recs []core.PeerRecord
	for rows.Next() {
		rec, err := scanPeer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanPeer(scan func(dest ...any) error) (core.PeerRecord, error) {
	var rec core.PeerRecord
	var name, caps, endpoint, status sql.NullString
	var registeredAt, lastHeartbeat time.Time
	if err := scan(&rec.ID, &name, &caps, &endpoint, &status, &registeredAt, &lastHeartbeat, &rec.LatencyMs, &rec.SuccessRate); err != nil {
		return core.PeerRecord{}, err
	}
	rec.Name = name.String
	rec.Endpoint = endpoint.String
	rec.Status = core.PeerStatus(status.String)
	rec.RegisteredAt = registeredAt
	rec.LastHeartbeat = lastHeartbeat
	if caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &rec.Capabilities); err != nil {
			return core.PeerRecord{}, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	return rec, nil
}
