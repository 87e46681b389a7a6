package handlers

import (
	tghelpers "github.com/m3rciful/channelgate/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// OnStart handles /start, including the ?start=checklist deep link.
func (h *Handlers) OnStart(c tele.Context) error {
	id := tghelpers.IdentityOf(c)
	return h.Start(tghelpers.BuildContext(c), id.ChatID, id.UserID, id.Username)
}

// OnCheck handles /check.
func (h *Handlers) OnCheck(c tele.Context) error {
	id := tghelpers.IdentityOf(c)
	return h.Check(tghelpers.BuildContext(c), id.ChatID, id.UserID, id.Username)
}

// OnText handles plain text messages.
func (h *Handlers) OnText(c tele.Context) error {
	id := tghelpers.IdentityOf(c)
	return h.Text(tghelpers.BuildContext(c), id.ChatID, id.UserID, id.Username, c.Text())
}

// OnStats handles the admin /stats command.
func (h *Handlers) OnStats(c tele.Context) error {
	return c.Send(h.Stats(tghelpers.BuildContext(c)))
}

// OnSave handles the admin /save command.
func (h *Handlers) OnSave(c tele.Context) error {
	return c.Send(h.Save(tghelpers.BuildContext(c)))
}

// RateLimited answers throttled users.
func (h *Handlers) RateLimited(c tele.Context) error {
	return c.Send(h.texts.Texts().RateLimited)
}
