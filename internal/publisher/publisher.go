// Package publisher posts the promotional message to the channel.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/core/telegram/format"
	"github.com/m3rciful/channelgate/core/telegram/keyboard"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/messenger"

	tele "gopkg.in/telebot.v4"
)

const component = "publisher"

// Status messages returned to the operator.
const (
	StatusPhoto = "Post with image published."
	StatusText  = "Text post published."
)

// PublishError wraps a platform rejection of the post.
type PublishError struct {
	WithImage bool
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publisher: post rejected: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Code identifies the error class in logs.
func (e *PublishError) Code() string { return "publish" }

// Options describe the channel and the deep link target.
type Options struct {
	Channel      messenger.Channel
	ChannelLink  string
	ChannelTitle string
	// Footer precedes the channel link at the bottom of every post.
	Footer      string
	BotUsername string
}

// Publisher formats and sends channel posts.
type Publisher struct {
	sender messenger.Sender
	opts   Options
}

// New builds a Publisher.
func New(sender messenger.Sender, opts Options) *Publisher {
	opts.BotUsername = strings.TrimPrefix(opts.BotUsername, "@")
	return &Publisher{sender: sender, opts: opts}
}

// DeepLink is the button target that starts the bot with the checklist payload.
func (p *Publisher) DeepLink() string {
	return "https://t.me/" + p.opts.BotUsername + "?start=checklist"
}

// Render builds the HTML body of post. Unbalanced bold tags in the description
// are rebuilt from its markers; the second result reports that.
func (p *Publisher) Render(post content.Post) (string, bool) {
	desc, repaired := format.RepairBold(post.Description)

	var b strings.Builder
	b.WriteString(format.Bold(post.Title))
	b.WriteString("\n\n")
	b.WriteString(desc)
	b.WriteString("\n\n")
	b.WriteString(format.Bold(post.Call))
	if p.opts.ChannelLink != "" {
		b.WriteString("\n\n")
		if p.opts.Footer != "" {
			b.WriteString(p.opts.Footer)
			b.WriteString(" ")
		}
		b.WriteString(format.Link(p.opts.ChannelLink, p.opts.ChannelTitle))
	}
	return b.String(), repaired
}

// Publish sends post to the channel, as a photo with caption when ImageURL is
// set and as a text message otherwise. Failures are not retried.
func (p *Publisher) Publish(ctx context.Context, post content.Post) (string, error) {
	start := time.Now()
	body, repaired := p.Render(post)
	if repaired {
		logger.Warn(ctx, component, "bold.repaired",
			slog.String("status", "degraded"),
		)
	}
	markup := keyboard.URLButton(post.ButtonText, p.DeepLink())
	withImage := post.ImageURL != ""

	var what interface{} = body
	if withImage {
		what = &tele.Photo{File: tele.FromURL(post.ImageURL), Caption: body}
	}
	if _, err := p.sender.Send(p.opts.Channel, what, markup, tele.ModeHTML); err != nil {
		perr := &PublishError{WithImage: withImage, Err: err}
		logger.Error(ctx, component, "publish",
			slog.String("status", "fail"),
			slog.Bool("image", withImage),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return "", perr
	}

	logger.Info(ctx, component, "publish",
		slog.String("status", "ok"),
		slog.Bool("image", withImage),
		slog.Duration("duration", logger.Took(start)),
	)
	if withImage {
		return StatusPhoto, nil
	}
	return StatusText, nil
}
