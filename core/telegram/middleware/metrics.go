package middleware

import (
	"context"
	"sync/atomic"

	tghelpers "github.com/m3rciful/channelgate/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const sendStatsKey = "send_stats"

// SendStats counts the messages sent while handling one update. A nil
// *SendStats ignores records.
type SendStats struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// Record counts one successful send made with opts.
func (s *SendStats) Record(opts []interface{}) {
	if s == nil {
		return
	}
	s.messages.Add(1)
	if hasKeyboard(opts) {
		s.keyboard.Store(true)
	}
}

// Snapshot returns the message count and whether any message carried a keyboard.
func (s *SendStats) Snapshot() (int, bool) {
	if s == nil {
		return 0, false
	}
	return int(s.messages.Load()), s.keyboard.Load()
}

type sendStatsCtxKey struct{}

// WithSendStats attaches s to ctx.
func WithSendStats(ctx context.Context, s *SendStats) context.Context {
	return context.WithValue(ctx, sendStatsCtxKey{}, s)
}

// SendStatsFrom returns the stats attached to ctx, or nil.
func SendStatsFrom(ctx context.Context) *SendStats {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sendStatsCtxKey{}).(*SendStats)
	return s
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// metricsContext counts replies sent through tele.Context.
type metricsContext struct {
	tele.Context
	stats *SendStats
}

// Send proxies tele.Context.Send while updating message counters.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.stats.Record(opts)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating message counters.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.stats.Record(opts)
	}
	return err
}

// MessageMetricsMiddleware starts fresh SendStats for the update. The stats
// are reachable from the tele.Context and from the request context, so sends
// made through the bot client by services count as well.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		stats := &SendStats{}
		c.Set(sendStatsKey, stats)
		tghelpers.StoreContext(c, WithSendStats(tghelpers.BuildContext(c), stats))
		return next(metricsContext{Context: c, stats: stats})
	}
}

// GetCounters reads message count and keyboard presence for the update.
func GetCounters(c tele.Context) (int, bool) {
	stats, _ := c.Get(sendStatsKey).(*SendStats)
	return stats.Snapshot()
}
