package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSpec(t *testing.T) {
	cases := []struct {
		in      time.Duration
		want    string
		wantErr bool
	}{
		{in: time.Minute, want: "@every 60s"},
		{in: 1500 * time.Millisecond, want: "@every 1s"},
		{in: 10 * time.Millisecond, want: "@every 1s"},
		{in: 0, wantErr: true},
		{in: -time.Second, wantErr: true},
	}
	for _, tc := range cases {
		got, err := intervalSpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("intervalSpec(%s) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("intervalSpec(%s) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestEveryRunsAndSurvivesFailures(t *testing.T) {
	s := New(time.UTC)
	var runs atomic.Int32
	_, err := s.Every(time.Second, Job{
		Name:    "flush",
		Timeout: time.Second,
		Run: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("job context has no deadline")
			}
			runs.Add(1)
			return errors.New("disk full")
		},
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	if s.Entries() != 1 {
		t.Fatalf("entries = %d", s.Entries())
	}

	s.Start()
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if runs.Load() < 2 {
		t.Fatalf("job ran %d times, want at least 2", runs.Load())
	}
}

func TestEveryRejectsBadInterval(t *testing.T) {
	if _, err := New(nil).Every(0, Job{Name: "x", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error")
	}
}
