// Package membership decides whether a user belongs to the gated channel.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/internal/messenger"

	tele "gopkg.in/telebot.v4"
)

const component = "membership"

// Recorder stores verification verdicts.
type Recorder interface {
	SetSubscription(userID int64, subscribed bool, checkedAt time.Time) bool
}

// Options tune the retry loop.
type Options struct {
	// Attempts is the total number of membership queries.
	Attempts uint
	// SettleDelay is waited before every query; joins take a moment to propagate.
	SettleDelay time.Duration
	// RetryDelay is waited between a negative attempt and the next one.
	RetryDelay time.Duration
}

// DefaultOptions returns three attempts, 500ms settle and 1s between attempts.
func DefaultOptions() Options {
	return Options{Attempts: 3, SettleDelay: 500 * time.Millisecond, RetryDelay: time.Second}
}

// VerificationError reports a failed membership query.
type VerificationError struct {
	UserID  int64
	Attempt uint
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("membership: query for user %d failed on attempt %d: %v", e.UserID, e.Attempt, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Code identifies the error class in logs.
func (e *VerificationError) Code() string { return "verification" }

// notSubscribedError turns a negative verdict into a retryable attempt failure.
type notSubscribedError struct{ status tele.MemberStatus }

func (e notSubscribedError) Error() string {
	return "membership: status " + string(e.status)
}

// Verifier checks channel membership with bounded retries.
type Verifier struct {
	client  messenger.MemberLookup
	channel tele.Recipient
	store   Recorder
	opts    Options
	now     func() time.Time
}

// NewVerifier builds a Verifier. Zero option fields fall back to DefaultOptions.
func NewVerifier(client messenger.MemberLookup, channel tele.Recipient, store Recorder, opts Options) *Verifier {
	def := DefaultOptions()
	if opts.Attempts == 0 {
		opts.Attempts = def.Attempts
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &Verifier{client: client, channel: channel, store: store, opts: opts, now: time.Now}
}

// IsSubscribed reports whether a chat member status counts as subscribed.
func IsSubscribed(status tele.MemberStatus) bool {
	switch status {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	default:
		return false
	}
}

// Verify queries the user's membership up to Attempts times and stops at the
// first positive answer. Query errors count as a negative answer for that
// attempt. The verdict is recorded in the store either way.
func (v *Verifier) Verify(ctx context.Context, userID int64) bool {
	start := time.Now()
	var attempt uint

	err := retry.Do(
		func() error {
			attempt++
			return v.attempt(ctx, userID, attempt)
		},
		retry.Attempts(v.opts.Attempts),
		retry.Delay(v.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)

	subscribed := err == nil
	v.store.SetSubscription(userID, subscribed, v.now())

	verdict := "subscribed"
	if !subscribed {
		verdict = "not_subscribed"
	}
	logger.Info(ctx, component, "verify",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("verdict", verdict),
		slog.Uint64("attempts", uint64(attempt)),
		slog.Duration("duration", logger.Took(start)),
	)
	return subscribed
}

func (v *Verifier) attempt(ctx context.Context, userID int64, n uint) error {
	if err := sleep(ctx, v.opts.SettleDelay); err != nil {
		return retry.Unrecoverable(err)
	}

	member, err := v.client.ChatMemberOf(v.channel, messenger.User(userID))
	if err != nil {
		verr := &VerificationError{UserID: userID, Attempt: n, Err: err}
		logger.Warn(ctx, component, "attempt",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Uint64("attempt", uint64(n)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return verr
	}

	status := member.Role
	logger.Debug(ctx, component, "attempt",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Uint64("attempt", uint64(n)),
		slog.String("member_status", string(status)),
	)
	if IsSubscribed(status) {
		return nil
	}
	return notSubscribedError{status: status}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
