// Package users keeps per-user engagement state in memory and flushes it to a
// JSON file.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
)

const component = "store.users"

// Store is the single owner of user records. All methods are safe for
// concurrent use; one mutex guards the whole map.
type Store struct {
	mu      sync.Mutex
	records map[int64]*Record

	// persistMu serializes file writes so two flushes never interleave.
	persistMu sync.Mutex
	path      string
	now       func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store backed by the file at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		records: make(map[int64]*Record),
		path:    path,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// GetOrCreate returns the record for userID, creating it with default flags
// when absent. A non-empty username refreshes the stored one.
func (s *Store) GetOrCreate(userID int64, username string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		if username != "" {
			rec.Username = username
		}
		return *rec, false
	}
	rec := &Record{UserID: userID, Username: username, LastActivity: s.now()}
	s.records[userID] = rec
	return *rec, true
}

// Get returns a copy of the record for userID.
func (s *Store) Get(userID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Touch bumps LastActivity of an existing record. Unknown users are ignored.
func (s *Store) Touch(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return false
	}
	if now := s.now(); now.After(rec.LastActivity) {
		rec.LastActivity = now
	}
	return true
}

// MarkWelcomeSent flags that the greeting went out. Unknown users are ignored.
func (s *Store) MarkWelcomeSent(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if ok {
		rec.WelcomeSent = true
	}
	return ok
}

// SetSubscription records a verification verdict. It is a no-op for unknown
// users and for verdicts older than the one already stored.
func (s *Store) SetSubscription(userID int64, subscribed bool, checkedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok || checkedAt.Before(rec.LastChecked) {
		return false
	}
	rec.IsSubscribed = subscribed
	rec.LastChecked = checkedAt
	return true
}

// MarkPDFSent sets PDFSent and returns its previous value. The read and the
// write happen under one lock, so exactly one caller per user sees false.
// A missing record is created so the flag is tracked for every user.
func (s *Store) MarkPDFSent(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{UserID: userID, LastActivity: s.now()}
		s.records[userID] = rec
	}
	was := rec.PDFSent
	rec.PDFSent = true
	return was
}

// Snapshot returns copies of all records ordered by user id.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Stats counts users, subscribers and delivered documents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Users: len(s.records)}
	for _, rec := range s.records {
		if rec.IsSubscribed {
			st.Subscribed++
		}
		if rec.PDFSent {
			st.PDFSent++
		}
	}
	return st
}

// Clear drops every record and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[int64]*Record)
	return n
}

// Persist writes a complete snapshot to the backing file. The file is
// replaced atomically through a temporary file in the same directory.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	start := time.Now()

	records := s.Snapshot()
	if err := s.writeFile(records); err != nil {
		logger.Error(ctx, component, "persist",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.Info(ctx, component, "persist",
		slog.String("status", "ok"),
		slog.String("path", s.path),
		slog.Int("users", len(records)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (s *Store) writeFile(records []Record) error {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistenceError{Op: "write", Path: s.path, Err: cause}
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Restore replaces the in-memory state with the contents of the backing file.
// A missing file leaves the store empty. Records that cannot be decoded are
// skipped and logged, and unparseable timestamps are replaced with the
// current time instead of failing the load.
func (s *Store) Restore(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(ctx, component, "restore",
			slog.String("status", "skip"),
			slog.String("path", s.path),
			slog.String("reason", "no_file"),
		)
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return &PersistenceError{Op: "decode", Path: s.path, Err: err}
	}

	now := s.now()
	records := make(map[int64]*Record, len(doc))
	repaired, skipped := 0, 0
	for key, raw := range doc {
		var fr fileRecord
		if err := json.Unmarshal(raw, &fr); err != nil {
			s.logSkipped(ctx, key, err)
			skipped++
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			if fr.UserID == 0 {
				s.logSkipped(ctx, key, fmt.Errorf("bad user key %q", key))
				skipped++
				continue
			}
			id = fr.UserID
		}
		rec := &Record{
			UserID:       id,
			Username:     fr.Username,
			WelcomeSent:  fr.WelcomeSent,
			PDFSent:      fr.PDFSent,
			IsSubscribed: fr.IsSubscribed,
		}
		if ts, ok := parseTimestamp(fr.LastActivity); ok {
			rec.LastActivity = ts
		} else {
			rec.LastActivity = now
			repaired++
		}
		if fr.LastChecked != "" {
			if ts, ok := parseTimestamp(fr.LastChecked); ok {
				rec.LastChecked = ts
			} else {
				rec.LastChecked = now
				repaired++
			}
		}
		records[id] = rec
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("path", s.path),
		slog.Int("users", len(records)),
	}
	if repaired > 0 {
		attrs = append(attrs, slog.Int("repaired_timestamps", repaired))
	}
	if skipped > 0 {
		attrs = append(attrs, slog.Int("skipped", skipped))
	}
	if repaired > 0 || skipped > 0 {
		logger.Warn(ctx, component, "restore", attrs...)
		return nil
	}
	logger.Info(ctx, component, "restore", attrs...)
	return nil
}

func (s *Store) logSkipped(ctx context.Context, key string, err error) {
	logger.Warn(ctx, component, "restore.record",
		slog.String("status", "skip"),
		slog.String("path", s.path),
		slog.String("key", logger.SanitizeLimit(key, 64)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
