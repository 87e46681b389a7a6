package users

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "data", "users.json"), opts...)
}

func TestGetOrCreateDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(fixedClock(now)))

	rec, created := s.GetOrCreate(42, "alice")
	if !created {
		t.Fatal("expected new record")
	}
	if rec.WelcomeSent || rec.PDFSent || rec.IsSubscribed {
		t.Fatalf("unexpected flags: %+v", rec)
	}
	if !rec.LastActivity.Equal(now) || !rec.LastChecked.IsZero() {
		t.Fatalf("timestamps = %v %v", rec.LastActivity, rec.LastChecked)
	}

	again, created := s.GetOrCreate(42, "")
	if created || again.Username != "alice" {
		t.Fatalf("second call = %+v created=%v", again, created)
	}
}

func TestTouchDoesNotCreate(t *testing.T) {
	s := newTestStore(t)
	if s.Touch(7) {
		t.Fatal("touch reported success for unknown user")
	}
	if _, ok := s.Get(7); ok {
		t.Fatal("touch created a record")
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return current }))
	s.GetOrCreate(1, "")

	current = current.Add(-time.Hour)
	s.Touch(1)
	rec, _ := s.Get(1)
	if !rec.LastActivity.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("last activity went backwards: %v", rec.LastActivity)
	}

	current = current.Add(2 * time.Hour)
	s.Touch(1)
	rec, _ = s.Get(1)
	if !rec.LastActivity.Equal(current) {
		t.Fatalf("last activity = %v, want %v", rec.LastActivity, current)
	}
}

func TestSetSubscriptionIgnoresStaleAndUnknown(t *testing.T) {
	s := newTestStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if s.SetSubscription(9, true, t0) {
		t.Fatal("unknown user updated")
	}

	s.GetOrCreate(9, "")
	if !s.SetSubscription(9, true, t0) {
		t.Fatal("fresh verdict rejected")
	}
	if s.SetSubscription(9, false, t0.Add(-time.Second)) {
		t.Fatal("stale verdict applied")
	}
	rec, _ := s.Get(9)
	if !rec.IsSubscribed || !rec.LastChecked.Equal(t0) {
		t.Fatalf("record = %+v", rec)
	}
}

func TestMarkPDFSentFirstFalseThenTrue(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate(42, "")
	for _, id := range []int64{42, 43} {
		if s.MarkPDFSent(id) {
			t.Fatalf("user %d: first call returned true", id)
		}
		for i := 0; i < 3; i++ {
			if !s.MarkPDFSent(id) {
				t.Fatalf("user %d: call %d returned false", id, i+2)
			}
		}
	}
	if _, ok := s.Get(43); !ok {
		t.Fatal("MarkPDFSent should create a missing record")
	}
}

func TestMarkPDFSentConcurrentSingleFirst(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate(5, "")

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.MarkPDFSent(5) {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := firsts.Load(); got != 1 {
		t.Fatalf("first-time callers = %d, want 1", got)
	}
}

func TestSnapshotStatsAndClear(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{30, 10, 20} {
		s.GetOrCreate(id, "")
	}
	s.SetSubscription(10, true, time.Now())
	s.MarkPDFSent(20)

	snap := s.Snapshot()
	if len(snap) != 3 || snap[0].UserID != 10 || snap[2].UserID != 30 {
		t.Fatalf("snapshot order = %+v", snap)
	}
	if st := s.Stats(); st != (Stats{Users: 3, Subscribed: 1, PDFSent: 1}) {
		t.Fatalf("stats = %+v", st)
	}
	if n := s.Clear(); n != 3 {
		t.Fatalf("cleared %d", n)
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("store not empty after clear")
	}
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	src.GetOrCreate(42, "alice")
	src.MarkWelcomeSent(42)
	src.SetSubscription(42, true, time.Now())
	src.MarkPDFSent(42)
	src.GetOrCreate(7, "")

	if err := src.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	dst := NewStore(src.Path())
	if err := dst.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want, got := src.Snapshot(), dst.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("restored %d records, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.UserID != g.UserID || w.Username != g.Username || w.WelcomeSent != g.WelcomeSent ||
			w.PDFSent != g.PDFSent || w.IsSubscribed != g.IsSubscribed {
			t.Fatalf("record %d: got %+v, want %+v", i, g, w)
		}
		if !w.LastActivity.Truncate(time.Second).Equal(g.LastActivity.Truncate(time.Second)) {
			t.Fatalf("last activity %v != %v", g.LastActivity, w.LastActivity)
		}
		if !w.LastChecked.Truncate(time.Second).Equal(g.LastChecked.Truncate(time.Second)) {
			t.Fatalf("last checked %v != %v", g.LastChecked, w.LastChecked)
		}
	}
}

func TestPersistWritesFileFormat(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate(42, "bob")
	if err := s.Persist(context.Background()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec, ok := doc["42"]
	if !ok {
		t.Fatalf("missing key 42 in %s", data)
	}
	for _, key := range []string{"user_id", "username", "welcome_sent", "pdf_sent", "is_subscribed", "last_activity"} {
		if _, ok := rec[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if _, ok := rec["last_checked"]; ok {
		t.Error("last_checked should be omitted before the first check")
	}
	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestPersistAfterClearWritesEmptyState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.GetOrCreate(1, "")
	s.Clear()
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	fresh := NewStore(s.Path())
	fresh.GetOrCreate(99, "")
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(fresh.Snapshot()) != 0 {
		t.Fatal("restore of an empty file should leave an empty store")
	}
}

func TestRestoreMissingFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("expected empty store")
	}
}

func TestRestoreRepairsTimestamps(t *testing.T) {
	now := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "users.json")
	body := `{
  "1": {"user_id": 1, "username": "iso", "welcome_sent": true, "pdf_sent": false, "is_subscribed": true,
        "last_activity": "2025-01-02T03:04:05.123456", "last_checked": "2025-01-02T03:04:06"},
  "2": {"user_id": 2, "username": "", "welcome_sent": false, "pdf_sent": true, "is_subscribed": false,
        "last_activity": "yesterday-ish", "last_checked": "also bad"}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, WithClock(fixedClock(now)))
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	iso, _ := s.Get(1)
	if iso.LastActivity.Year() != 2025 || iso.LastActivity.Nanosecond() != 123456000 {
		t.Fatalf("iso timestamp parsed as %v", iso.LastActivity)
	}
	if !iso.WelcomeSent || !iso.IsSubscribed {
		t.Fatalf("flags lost: %+v", iso)
	}

	bad, _ := s.Get(2)
	if !bad.LastActivity.Equal(now) || !bad.LastChecked.Equal(now) {
		t.Fatalf("malformed timestamps not replaced: %+v", bad)
	}
	if !bad.PDFSent {
		t.Fatal("pdf flag lost")
	}
}

func TestRestoreMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := NewStore(path).Restore(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "decode" {
		t.Fatalf("err = %v, want decode PersistenceError", err)
	}
}

func TestRestoreSkipsBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	doc := `{
		"1": {"user_id": 1, "pdf_sent": "yes", "last_activity": "2024-05-01T10:00:00"},
		"2": {"user_id": 2, "username": "ok", "pdf_sent": true, "last_activity": "2024-05-01T10:00:00"},
		"nope": {"user_id": 0, "last_activity": "2024-05-01T10:00:00"},
		"legacy": {"user_id": 3, "last_activity": "2024-05-01T10:00:00"}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path)
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, ok := s.Get(1); ok {
		t.Fatal("record with a wrong-typed field should be skipped")
	}
	rec, ok := s.Get(2)
	if !ok || rec.Username != "ok" || !rec.PDFSent {
		t.Fatalf("record 2 = %+v, %v", rec, ok)
	}
	if _, ok := s.Get(3); !ok {
		t.Fatal("non-numeric key with a user_id should fall back to the id")
	}
	if got := s.Stats().Users; got != 2 {
		t.Fatalf("users = %d, want 2", got)
	}
}

func TestPersistFailureIsTyped(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(filepath.Join(blocker, "users.json"))
	s.GetOrCreate(1, "")

	err := s.Persist(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if perr.Code() != "persistence_write" {
		t.Fatalf("code = %q", perr.Code())
	}
}
