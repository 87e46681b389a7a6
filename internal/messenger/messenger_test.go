package messenger

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/channelgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

func TestChannelRecipient(t *testing.T) {
	cases := map[Channel]string{
		"cosy":      "@cosy",
		"@cosy":     "@cosy",
		"-10012345": "-10012345",
		" @spaced ": "@spaced",
	}
	for in, want := range cases {
		if got := in.Recipient(); got != want {
			t.Errorf("Channel(%q).Recipient() = %q, want %q", string(in), got, want)
		}
	}
}

func TestChatAndUserRecipients(t *testing.T) {
	if got := Chat(42).Recipient(); got != "42" {
		t.Fatalf("chat = %q", got)
	}
	if got := User(-7).Recipient(); got != "-7" {
		t.Fatalf("user = %q", got)
	}
	if id, ok := ChatIDOf(Chat(42)); !ok || id != 42 {
		t.Fatalf("ChatIDOf = %d %v", id, ok)
	}
	if _, ok := ChatIDOf(Channel("cosy")); ok {
		t.Fatal("channel handle should not parse as id")
	}
}

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(tele.Recipient, interface{}, ...interface{}) (*tele.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &tele.Message{ID: s.calls}, nil
}

func TestSendCountsSuccessfulMessages(t *testing.T) {
	stats := &middleware.SendStats{}
	ctx := middleware.WithSendStats(context.Background(), stats)
	s := &stubSender{}

	if _, err := Send(ctx, s, Chat(1), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := Send(ctx, s, Chat(1), "pick", &tele.ReplyMarkup{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	s.err = errors.New("boom")
	if _, err := Send(ctx, s, Chat(1), "lost"); err == nil {
		t.Fatalf("expected send error")
	}

	n, kb := stats.Snapshot()
	if n != 2 || !kb {
		t.Fatalf("stats = (%d, %v), want (2, true)", n, kb)
	}
	if s.calls != 3 {
		t.Fatalf("sender calls = %d, want 3", s.calls)
	}
}

func TestSendWithoutStats(t *testing.T) {
	s := &stubSender{}
	if _, err := Send(context.Background(), s, Chat(1), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
