// Package messenger narrows the Telegram client to the calls the bot makes.
// *tele.Bot satisfies every interface here.
package messenger

import (
	"context"
	"strconv"
	"strings"

	"github.com/m3rciful/channelgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Sender sends messages, documents and photos.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Editor changes or removes previously sent messages.
type Editor interface {
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// MemberLookup queries chat membership.
type MemberLookup interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Client is everything the chat flows need.
type Client interface {
	Sender
	Editor
	MemberLookup
}

var _ Client = (*tele.Bot)(nil)

// Send delivers what through s and counts the message against the update
// stats carried by ctx.
func Send(ctx context.Context, s Sender, to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	msg, err := s.Send(to, what, opts...)
	if err == nil {
		middleware.SendStatsFrom(ctx).Record(opts)
	}
	return msg, err
}

// Channel addresses a public channel by its @username.
type Channel string

// Recipient implements tele.Recipient.
func (c Channel) Recipient() string {
	s := strings.TrimSpace(string(c))
	if s == "" || strings.HasPrefix(s, "@") || strings.HasPrefix(s, "-") {
		return s
	}
	return "@" + s
}

// Chat addresses a private chat by id.
func Chat(id int64) tele.Recipient {
	return tele.ChatID(id)
}

// User addresses a user by id.
func User(id int64) tele.Recipient {
	return &tele.User{ID: id}
}

// ChatIDOf parses a recipient string back into a numeric id.
func ChatIDOf(r tele.Recipient) (int64, bool) {
	id, err := strconv.ParseInt(r.Recipient(), 10, 64)
	return id, err == nil
}
