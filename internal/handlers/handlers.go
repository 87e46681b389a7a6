// Package handlers maps chat events onto the user store and the gate.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/core/telegram/keyboard"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/gate"
	"github.com/m3rciful/channelgate/internal/messenger"
	"github.com/m3rciful/channelgate/internal/users"
)

const component = "handlers"

// Store is the part of users.Store the handlers touch.
type Store interface {
	GetOrCreate(userID int64, username string) (users.Record, bool)
	Get(userID int64) (users.Record, bool)
	Touch(userID int64) bool
	MarkWelcomeSent(userID int64) bool
	Stats() users.Stats
	Persist(ctx context.Context) error
}

// Gate funnels every document request through the membership check.
type Gate interface {
	Handle(ctx context.Context, chatID, userID int64, opts ...gate.Option) bool
}

// Texts supplies the current copy.
type Texts interface {
	Texts() content.Copy
}

// Handlers implements the chat flows.
type Handlers struct {
	store       Store
	gate        Gate
	client      messenger.Client
	texts       Texts
	promptDelay time.Duration
}

// New builds Handlers. promptDelay separates the /check verdict note from the join prompt.
func New(store Store, g Gate, client messenger.Client, texts Texts, promptDelay time.Duration) *Handlers {
	return &Handlers{store: store, gate: g, client: client, texts: texts, promptDelay: promptDelay}
}

// Start provisions the user, greets them and runs the gate.
func (h *Handlers) Start(ctx context.Context, chatID, userID int64, username string) error {
	h.store.GetOrCreate(userID, username)
	h.store.Touch(userID)

	h.sendGreeting(ctx, chatID)
	h.gate.Handle(ctx, chatID, userID)
	h.store.MarkWelcomeSent(userID)

	logger.Info(ctx, component, "start",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
	)
	return nil
}

// Check runs the gate behind a transient status message. The message is
// removed on a positive verdict and replaced with a note on a negative one.
func (h *Handlers) Check(ctx context.Context, chatID, userID int64, username string) error {
	h.store.GetOrCreate(userID, username)
	h.store.Touch(userID)
	texts := h.texts.Texts()

	status, err := messenger.Send(ctx, h.client, messenger.Chat(chatID), texts.Checking)
	if err != nil {
		logger.Warn(ctx, component, "check.status",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}

	onVerdict := func(subscribed bool) {
		if status == nil {
			return
		}
		if subscribed {
			if err := h.client.Delete(status); err != nil {
				logger.Debug(ctx, component, "check.status_delete",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
			return
		}
		note := texts.NotSubscribed
		if ctx.Err() != nil {
			note = texts.CheckFailed
		}
		if _, err := h.client.Edit(status, note); err != nil {
			logger.Debug(ctx, component, "check.status_edit",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	h.gate.Handle(ctx, chatID, userID, gate.WithVerdictHook(onVerdict), gate.WithPromptDelay(h.promptDelay))
	return nil
}

// Text handles free-form messages: the checklist button runs the gate, known
// users get a reminder and everyone else gets the greeting.
func (h *Handlers) Text(ctx context.Context, chatID, userID int64, username, text string) error {
	texts := h.texts.Texts()
	if text == texts.ChecklistButton {
		h.store.GetOrCreate(userID, username)
		h.store.Touch(userID)
		h.gate.Handle(ctx, chatID, userID)
		return nil
	}

	if rec, ok := h.store.Get(userID); ok && rec.WelcomeSent {
		h.store.Touch(userID)
		_, err := messenger.Send(ctx, h.client, messenger.Chat(chatID), texts.Reminder)
		return err
	}

	h.store.GetOrCreate(userID, username)
	h.store.Touch(userID)
	h.sendGreeting(ctx, chatID)
	h.store.MarkWelcomeSent(userID)
	return nil
}

// Stats renders the operator summary.
func (h *Handlers) Stats(context.Context) string {
	st := h.store.Stats()
	return fmt.Sprintf("Users: %d\nSubscribed: %d\nDocuments sent: %d", st.Users, st.Subscribed, st.PDFSent)
}

// Save flushes the store on operator request.
func (h *Handlers) Save(ctx context.Context) string {
	if err := h.store.Persist(ctx); err != nil {
		return "Save failed: " + err.Error()
	}
	return fmt.Sprintf("Saved %d users.", h.store.Stats().Users)
}

func (h *Handlers) sendGreeting(ctx context.Context, chatID int64) {
	texts := h.texts.Texts()
	markup := keyboard.ReplyButtons([]string{texts.ChecklistButton})
	if _, err := messenger.Send(ctx, h.client, messenger.Chat(chatID), texts.Greeting, markup); err != nil {
		logger.Warn(ctx, component, "greeting",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}
