package middleware

import (
	"context"
	"testing"

	tghelpers "github.com/m3rciful/channelgate/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func TestSendStatsNilSafe(t *testing.T) {
	var s *SendStats
	s.Record(nil)
	if n, kb := s.Snapshot(); n != 0 || kb {
		t.Fatalf("nil snapshot = (%d, %v), want (0, false)", n, kb)
	}
	if SendStatsFrom(context.Background()) != nil {
		t.Fatalf("expected no stats on a bare context")
	}
}

func TestSendStatsRecordsKeyboard(t *testing.T) {
	s := &SendStats{}
	s.Record(nil)
	if n, kb := s.Snapshot(); n != 1 || kb {
		t.Fatalf("snapshot = (%d, %v), want (1, false)", n, kb)
	}
	s.Record([]interface{}{&tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}}})
	if n, kb := s.Snapshot(); n != 2 || !kb {
		t.Fatalf("snapshot = (%d, %v), want (2, true)", n, kb)
	}
}

func TestMessageMetricsMiddlewareExposesStatsOnRequestContext(t *testing.T) {
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	c := bot.NewContext(tele.Update{ID: 7, Message: &tele.Message{
		Sender: &tele.User{ID: 42},
		Chat:   &tele.Chat{ID: 42},
	}})

	h := MessageMetricsMiddleware(func(c tele.Context) error {
		stats := SendStatsFrom(tghelpers.BuildContext(c))
		if stats == nil {
			t.Fatalf("request context carries no send stats")
		}
		stats.Record([]interface{}{&tele.ReplyMarkup{}})
		stats.Record(nil)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	n, kb := GetCounters(c)
	if n != 2 || !kb {
		t.Fatalf("GetCounters = (%d, %v), want (2, true)", n, kb)
	}
}

func TestGetCountersWithoutMiddleware(t *testing.T) {
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	c := bot.NewContext(tele.Update{ID: 1})
	if n, kb := GetCounters(c); n != 0 || kb {
		t.Fatalf("GetCounters = (%d, %v), want (0, false)", n, kb)
	}
}
