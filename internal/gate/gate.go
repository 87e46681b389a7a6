// Package gate couples the membership check to document delivery. Every
// entry point (/start, /check, the keyboard button) goes through Gate.Handle.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/core/telegram/keyboard"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/messenger"
)

const component = "gate"

// Verifier reports channel membership.
type Verifier interface {
	Verify(ctx context.Context, userID int64) bool
}

// Deliverer sends the bonus document.
type Deliverer interface {
	Deliver(ctx context.Context, chatID, userID int64) bool
}

// Prompts supplies the join prompt copy and channel link.
type Prompts interface {
	Texts() content.Copy
	ChannelURL() string
}

// Gate releases the document only to channel members.
type Gate struct {
	verifier  Verifier
	deliverer Deliverer
	sender    messenger.Sender
	prompts   Prompts
}

// New builds a Gate.
func New(verifier Verifier, deliverer Deliverer, sender messenger.Sender, prompts Prompts) *Gate {
	return &Gate{verifier: verifier, deliverer: deliverer, sender: sender, prompts: prompts}
}

type handleOptions struct {
	onVerdict   func(subscribed bool)
	promptDelay time.Duration
}

// Option adjusts a single Handle call.
type Option func(*handleOptions)

// WithVerdictHook runs fn with the verdict before delivery or the join prompt.
func WithVerdictHook(fn func(subscribed bool)) Option {
	return func(o *handleOptions) { o.onVerdict = fn }
}

// WithPromptDelay waits d before sending the join prompt on a negative verdict.
func WithPromptDelay(d time.Duration) Option {
	return func(o *handleOptions) { o.promptDelay = d }
}

// Handle verifies userID and either delivers the document to chatID or sends
// the join prompt. It returns true only when the document was delivered as a file.
func (g *Gate) Handle(ctx context.Context, chatID, userID int64, opts ...Option) bool {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}

	subscribed := g.verifier.Verify(ctx, userID)
	if o.onVerdict != nil {
		o.onVerdict(subscribed)
	}

	if subscribed {
		delivered := g.deliverer.Deliver(ctx, chatID, userID)
		logger.Info(ctx, component, "handle",
			slog.String("status", "ok"),
			slog.Int64("user_id", userID),
			slog.String("verdict", "subscribed"),
			slog.Bool("delivered", delivered),
		)
		return delivered
	}

	if o.promptDelay > 0 {
		t := time.NewTimer(o.promptDelay)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
	err := g.SendJoinPrompt(ctx, chatID)
	logger.Info(ctx, component, "handle",
		slog.String("status", logger.Status(err)),
		slog.Int64("user_id", userID),
		slog.String("verdict", "not_subscribed"),
		slog.Bool("delivered", false),
	)
	return false
}

// SendJoinPrompt sends the subscription request with a link button to the channel.
func (g *Gate) SendJoinPrompt(ctx context.Context, chatID int64) error {
	texts := g.prompts.Texts()
	markup := keyboard.URLButton(texts.JoinButton, g.prompts.ChannelURL())
	if _, err := messenger.Send(ctx, g.sender, messenger.Chat(chatID), texts.JoinPrompt, markup); err != nil {
		logger.Warn(ctx, component, "join_prompt",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return err
	}
	return nil
}
