// Package messengertest provides an in-memory messenger.Client for tests.
package messengertest

import (
	"errors"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// ErrScripted is returned when a scripted step asks for a failure without a specific error.
var ErrScripted = errors.New("messengertest: scripted failure")

// Sent is one outbound call captured by Fake.
type Sent struct {
	To   string
	What interface{}
	Opts []interface{}
	ID   int
}

// Text returns the payload when it is a plain string.
func (s Sent) Text() string {
	str, _ := s.What.(string)
	return str
}

// Edited is one edit captured by Fake.
type Edited struct {
	MessageID int
	What      interface{}
}

// MemberAnswer scripts one ChatMemberOf result.
type MemberAnswer struct {
	Role tele.MemberStatus
	Err  error
}

// Fake records sends, edits and deletes and answers membership queries from a script.
type Fake struct {
	mu sync.Mutex

	sent    []Sent
	edits   []Edited
	deletes []int
	lookups int
	nextID  int

	// Members is consumed one answer per ChatMemberOf call; the last answer repeats.
	Members []MemberAnswer
	// FailSend lets a test reject specific payloads.
	FailSend func(to tele.Recipient, what interface{}) error
	EditErr  error
}

// Send implements messenger.Sender.
func (f *Fake) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.FailSend != nil {
		if err := f.FailSend(to, what); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, Sent{To: to.Recipient(), What: what, Opts: opts, ID: f.nextID})
	msg := &tele.Message{ID: f.nextID, Chat: &tele.Chat{}}
	if id, err := strconv.ParseInt(to.Recipient(), 10, 64); err == nil {
		msg.Chat.ID = id
	}
	return msg, nil
}

// Edit implements messenger.Editor.
func (f *Fake) Edit(msg tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.EditErr != nil {
		return nil, f.EditErr
	}
	id, _ := msg.MessageSig()
	n, _ := strconv.Atoi(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, Edited{MessageID: n, What: what})
	return &tele.Message{ID: n}, nil
}

// Delete implements messenger.Editor.
func (f *Fake) Delete(msg tele.Editable) error {
	id, _ := msg.MessageSig()
	n, _ := strconv.Atoi(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, n)
	return nil
}

// ChatMemberOf implements messenger.MemberLookup.
func (f *Fake) ChatMemberOf(_, user tele.Recipient) (*tele.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if len(f.Members) == 0 {
		return nil, ErrScripted
	}
	idx := f.lookups - 1
	if idx >= len(f.Members) {
		idx = len(f.Members) - 1
	}
	answer := f.Members[idx]
	if answer.Err != nil {
		return nil, answer.Err
	}
	id, _ := strconv.ParseInt(user.Recipient(), 10, 64)
	return &tele.ChatMember{Role: answer.Role, User: &tele.User{ID: id}}, nil
}

// Script replaces the membership answers and resets the lookup counter.
func (f *Fake) Script(answers ...MemberAnswer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members = answers
	f.lookups = 0
}

// Statuses is shorthand for scripting plain role answers.
func Statuses(roles ...tele.MemberStatus) []MemberAnswer {
	out := make([]MemberAnswer, len(roles))
	for i, r := range roles {
		out[i] = MemberAnswer{Role: r}
	}
	return out
}

// Lookups returns how many membership queries were made.
func (f *Fake) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// Sent returns a copy of every captured send.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Texts returns the plain text payloads in send order.
func (f *Fake) Texts() []string {
	var out []string
	for _, s := range f.Sent() {
		if t := s.Text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Documents returns every document payload in send order.
func (f *Fake) Documents() []*tele.Document {
	var out []*tele.Document
	for _, s := range f.Sent() {
		if d, ok := s.What.(*tele.Document); ok {
			out = append(out, d)
		}
	}
	return out
}

// Edits returns a copy of every captured edit.
func (f *Fake) Edits() []Edited {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edited(nil), f.edits...)
}

// Deletes returns the ids of deleted messages.
func (f *Fake) Deletes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.deletes...)
}

// Reset forgets everything recorded so far.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent, f.edits, f.deletes = nil, nil, nil
	f.lookups = 0
}
