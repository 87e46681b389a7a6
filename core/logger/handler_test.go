package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, *asyncWriter, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(handler), aw, buf
}

func drain(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, aw, buf := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "gate"), slog.LevelInfo, "gate.verdict",
		slog.String("status", "OK"),
		slog.Bool("verdict", true),
	)
	line := drain(t, aw, buf)

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=gate", "event=gate.verdict", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "verdict=true"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, aw, buf := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "delivery"), slog.LevelError, "tier.fail",
		slog.String("status", "fail"),
		slog.String("tier", "bytes"),
		slog.String("err", "boom"),
	)
	line := drain(t, aw, buf)

	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"delivery"`, `"event":"tier.fail"`, `"status":"fail"`, `"rid":"rid-json"`, `"tier":"bytes"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	tests := []struct {
		name   string
		format logFormat
		want   []string
		absent []string
	}{
		{name: "kv", format: formatKV, want: []string{"rid=" + CompactRID("123:456:789")}, absent: []string{"rid_full="}},
		{name: "json", format: formatJSON, want: []string{`"rid":"` + CompactRID("123:456:789") + `"`, `"rid_full":"123:456:789"`, `"ts_unix_nano"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, aw, buf := newTestLogger(t, tt.format)
			ctx := WithRID(context.Background(), "123:456:789")
			LogEvent(ctx, log, slog.LevelInfo, "rid.test")
			line := drain(t, aw, buf)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Fatalf("expected %s in %s", w, line)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(line, a) {
					t.Fatalf("unexpected %s in %s", a, line)
				}
			}
		})
	}
}

func TestStructuredHandlerDurationsAndLevels(t *testing.T) {
	log, aw, buf := newTestLogger(t, formatKV)
	log.LogAttrs(context.Background(), slog.LevelDebug, "dropped")
	log.LogAttrs(context.Background(), slog.LevelWarn, "slow.call", slog.Duration("duration", 1500*time.Microsecond))
	line := drain(t, aw, buf)

	if strings.Contains(line, "dropped") {
		t.Fatalf("debug line should be filtered: %s", line)
	}
	if !strings.Contains(line, "duration_ms=2") {
		t.Fatalf("expected rounded duration_ms, got %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("expected default component, got %s", line)
	}
}

func TestParseRatioSpec(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
	}{
		{"1/10", 1, 10},
		{"25", 1, 25},
		{"0", 0, 0},
		{"x/y", 0, 0},
	}
	for _, tt := range tests {
		num, den := parseRatioSpec(tt.in)
		if num != tt.num || den != tt.den {
			t.Errorf("parseRatioSpec(%q) = %d/%d, want %d/%d", tt.in, num, den, tt.num, tt.den)
		}
	}
}
