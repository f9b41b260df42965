package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/rusenback/berrymon/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotRetention is how long a snapshot survives without being rewritten
const SnapshotRetention = 24 * time.Hour

// Storage handles persistent dashboard state: durable key-value pairs and the
// per-session exchange snapshots
type Storage struct {
	db      *sql.DB
	session string
	logger  *log.Logger

	writeChan chan *SnapshotEntry
	closeChan chan struct{}
	done      sync.WaitGroup
	closeOnce sync.Once
}

// SnapshotEntry is one feed's log snapshot waiting to be written
type SnapshotEntry struct {
	Feed    string
	Records []model.ExchangeRecord
	SavedAt time.Time
}

// snapshotRecord is the stored form of a record
type snapshotRecord struct {
	ID          string `json:"id,omitempty"`
	Timestamp   string `json:"ts"`
	Direction   string `json:"dir"`
	Channel     string `json:"channel,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Note        string `json:"note,omitempty"`
	Status      string `json:"status,omitempty"`
	RenderKey   string `json:"render_key,omitempty"`
	Local       bool   `json:"local,omitempty"`
}

// NewStorage opens (or creates) the database in dataDir. Snapshots written by
// other sessions are dropped.
func NewStorage(dataDir, session string, logger *log.Logger) (*Storage, error) {
	if session == "" {
		return nil, errors.New("storage: empty session id")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "berrymon.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer, sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`DELETE FROM exchange_snapshots WHERE session <> ?`, session); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prune old sessions: %w", err)
	}

	s := &Storage{
		db:        db,
		session:   session,
		logger:    logger,
		writeChan: make(chan *SnapshotEntry, 64),
		closeChan: make(chan struct{}),
	}

	s.done.Add(2)
	go s.writer()
	go s.cleanup()

	return s, nil
}

// createTables creates the database schema
func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchange_snapshots (
		session TEXT NOT NULL,
		feed TEXT NOT NULL,
		saved_at INTEGER NOT NULL,
		records TEXT NOT NULL,
		PRIMARY KEY (session, feed)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_saved
	ON exchange_snapshots(saved_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Session returns the id snapshots are scoped to
func (s *Storage) Session() string {
	return s.session
}

// Get reads a durable value
func (s *Storage) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Printf("storage: get %q: %v", key, err)
		}
		return "", false
	}
	return value, true
}

// Set writes a durable value
func (s *Storage) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove deletes a durable value. Removing a missing key is not an error.
func (s *Storage) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// SaveSnapshot queues a feed's snapshot for writing. Only the newest queued
// snapshot per feed is written.
func (s *Storage) SaveSnapshot(feed string, records []model.ExchangeRecord) {
	entry := &SnapshotEntry{
		Feed:    feed,
		Records: append([]model.ExchangeRecord(nil), records...),
		SavedAt: time.Now(),
	}

	select {
	case <-s.closeChan:
		return
	default:
	}

	select {
	case s.writeChan <- entry:
	default:
		// Channel full; a later save supersedes this one anyway
		s.logger.Printf("storage: snapshot queue full, dropped %s", feed)
	}
}

// LoadSnapshot returns the stored snapshot of a feed for this session
func (s *Storage) LoadSnapshot(feed string) ([]model.ExchangeRecord, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT records FROM exchange_snapshots WHERE session = ? AND feed = ?`,
		s.session, feed,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", feed, err)
	}

	var stored []snapshotRecord
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", feed, err)
	}

	out := make([]model.ExchangeRecord, len(stored))
	for i, r := range stored {
		out[i] = model.ExchangeRecord{
			ID:          r.ID,
			Timestamp:   r.Timestamp,
			Direction:   model.Direction(r.Direction),
			Channel:     r.Channel,
			Payload:     r.Payload,
			ContentType: r.ContentType,
			Note:        r.Note,
			Status:      r.Status,
			RenderKey:   r.RenderKey,
			Local:       r.Local,
		}
	}
	return out, nil
}

// writer runs in background and writes the latest snapshot per feed
func (s *Storage) writer() {
	defer s.done.Done()

	pending := make(map[string]*SnapshotEntry)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry := <-s.writeChan:
			pending[entry.Feed] = entry

		case <-ticker.C:
			if len(pending) > 0 {
				s.batchWrite(pending)
				pending = make(map[string]*SnapshotEntry)
			}

		case <-s.closeChan:
			// Drain whatever was queued before close
		drain:
			for {
				select {
				case entry := <-s.writeChan:
					pending[entry.Feed] = entry
				default:
					break drain
				}
			}
			if len(pending) > 0 {
				s.batchWrite(pending)
			}
			return
		}
	}
}

// batchWrite writes a batch of snapshots in one transaction
func (s *Storage) batchWrite(entries map[string]*SnapshotEntry) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Printf("storage: begin: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO exchange_snapshots (session, feed, saved_at, records)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session, feed) DO UPDATE
		SET saved_at = excluded.saved_at, records = excluded.records
	`)
	if err != nil {
		s.logger.Printf("storage: prepare: %v", err)
		return
	}
	defer stmt.Close()

	for _, entry := range entries {
		blob, err := encodeRecords(entry.Records)
		if err != nil {
			s.logger.Printf("storage: encode %s: %v", entry.Feed, err)
			continue
		}
		if _, err := stmt.Exec(s.session, entry.Feed, entry.SavedAt.Unix(), blob); err != nil {
			s.logger.Printf("storage: write %s: %v", entry.Feed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Printf("storage: commit: %v", err)
	}
}

func encodeRecords(records []model.ExchangeRecord) (string, error) {
	stored := make([]snapshotRecord, len(records))
	for i, r := range records {
		stored[i] = snapshotRecord{
			ID:          r.ID,
			Timestamp:   r.Timestamp,
			Direction:   string(r.Direction),
			Channel:     r.Channel,
			Payload:     r.Payload,
			ContentType: r.ContentType,
			Note:        r.Note,
			Status:      r.Status,
			RenderKey:   r.RenderKey,
			Local:       r.Local,
		}
	}
	blob, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// cleanup removes stale snapshots periodically
func (s *Storage) cleanup() {
	defer s.done.Done()

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-SnapshotRetention).Unix()
			s.deleteBefore(cutoff)

		case <-s.closeChan:
			return
		}
	}
}

// deleteBefore removes snapshots not rewritten since cutoff
func (s *Storage) deleteBefore(cutoff int64) int64 {
	result, err := s.db.Exec(`DELETE FROM exchange_snapshots WHERE saved_at < ?`, cutoff)
	if err != nil {
		s.logger.Printf("storage: cleanup: %v", err)
		return 0
	}
	n, _ := result.RowsAffected()
	return n
}

// Close flushes queued snapshots and closes the database
func (s *Storage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.done.Wait()
		err = s.db.Close()
	})
	return err
}
