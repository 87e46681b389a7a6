package middleware

import (
	"log/slog"

	"github.com/m3rciful/channelgate/core/logger"
	tghelpers "github.com/m3rciful/channelgate/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender of c is the configured admin.
// With no admin configured nobody is.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	if o.AdminID == 0 || c.Sender() == nil {
		return false
	}
	return c.Sender().ID == o.AdminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.IsAdmin(c) {
				logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject",
					slog.String("status", "skip"),
				)
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
