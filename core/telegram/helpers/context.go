// Package helpers bridges tele.Context to the context.Context used by services.
package helpers

import (
	"context"

	"github.com/m3rciful/channelgate/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "request_ctx"

// Identity names the sender of an update and the chat it arrived in.
type Identity struct {
	ChatID   int64
	UserID   int64
	Username string
}

// IdentityOf extracts the sender and chat of c. Updates without a chat fall
// back to the sender's private chat.
func IdentityOf(c tele.Context) Identity {
	var id Identity
	if c == nil {
		return id
	}
	if chat := c.Chat(); chat != nil {
		id.ChatID = chat.ID
	}
	if u := c.Sender(); u != nil {
		id.UserID = u.ID
		id.Username = u.Username
	}
	if id.ChatID == 0 {
		id.ChatID = id.UserID
	}
	return id
}

// BuildContext returns the request context for c. The first call derives it
// from the update (rid, update/user/chat ids) and caches it on c.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(ctxKey).(context.Context); ok && ctx != nil {
		return ctx
	}

	id := IdentityOf(c)
	updateID := c.Update().ID
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, id.ChatID, id.UserID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, id.UserID, id.ChatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// StoreContext replaces the cached request context of c.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxKey, ctx)
}

// WithHandler tags the cached request context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || c == nil {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
