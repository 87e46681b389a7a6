// Package delivery sends the bonus document to a chat, falling back from a
// byte upload to a URL relay to a plain link.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/messenger"

	tele "gopkg.in/telebot.v4"
)

const component = "delivery"

// Tier names one fallback strategy.
type Tier string

// Delivery tiers in fallback order, plus the intro message.
const (
	TierBytes Tier = "bytes"
	TierURL   Tier = "url"
	TierLink  Tier = "link"
	TierIntro Tier = "intro"
)

var pdfSignature = []byte("%PDF")

var (
	errEmptyBody = errors.New("empty body")
	errTooLarge  = errors.New("body exceeds size limit")
)

// Content supplies the current document URL and copy.
type Content interface {
	BonusURL() string
	Texts() content.Copy
}

// Marker flips the per-user "document sent" flag and returns its previous value.
type Marker interface {
	MarkPDFSent(userID int64) bool
}

// Options configure the document fetch and upload.
type Options struct {
	FileName     string
	Caption      string
	FetchTimeout time.Duration
	MaxBytes     int64
}

// Service delivers the bonus document.
type Service struct {
	sender  messenger.Sender
	marker  Marker
	content Content
	client  *http.Client
	opts    Options
}

// NewService builds a Service. A nil client gets a plain http.Client; the
// fetch timeout is applied per request.
func NewService(sender messenger.Sender, marker Marker, src Content, client *http.Client, opts Options) *Service {
	if client == nil {
		client = &http.Client{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.FileName == "" {
		opts.FileName = "checklist.pdf"
	}
	return &Service{sender: sender, marker: marker, content: src, client: client, opts: opts}
}

// Deliver sends the intro text and the document to chatID. It reports true
// only when the document went out as a file; the link-only fallback returns
// false even though the user received a usable link.
func (s *Service) Deliver(ctx context.Context, chatID, userID int64) bool {
	start := time.Now()
	chat := messenger.Chat(chatID)
	wasSent := s.marker.MarkPDFSent(userID)
	texts := s.content.Texts()
	url := s.content.BonusURL()

	intro := texts.FirstDelivery
	if wasSent {
		intro = texts.RepeatDelivery
	}
	if _, err := messenger.Send(ctx, s.sender, chat, intro); err != nil {
		s.logTierFailure(ctx, userID, &DeliveryError{Tier: TierIntro, Err: err})
		s.sendLink(ctx, chat, userID, texts.ErrorFallback)
		return false
	}

	err := s.sendBytes(ctx, chat, url)
	if err == nil {
		s.logDelivered(ctx, userID, TierBytes, !wasSent, start)
		return true
	}
	s.logTierFailure(ctx, userID, err)

	err = s.sendByURL(ctx, chat, url)
	if err == nil {
		s.logDelivered(ctx, userID, TierURL, !wasSent, start)
		return true
	}
	s.logTierFailure(ctx, userID, err)

	s.sendLink(ctx, chat, userID, texts.LinkFallback)
	logger.Warn(ctx, component, "deliver",
		slog.String("status", "degraded"),
		slog.Int64("user_id", userID),
		slog.String("tier", string(TierLink)),
		slog.Bool("first_time", !wasSent),
		slog.Duration("duration", logger.Took(start)),
	)
	return false
}

func (s *Service) sendBytes(ctx context.Context, chat tele.Recipient, url string) error {
	data, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(data, pdfSignature) {
		logger.Warn(ctx, component, "signature",
			slog.String("status", "degraded"),
			slog.String("reason", "not_pdf"),
			slog.Int("bytes", len(data)),
		)
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: s.opts.FileName,
		Caption:  s.opts.Caption,
	}
	if _, err := messenger.Send(ctx, s.sender, chat, doc); err != nil {
		return &DeliveryError{Tier: TierBytes, Err: err}
	}
	return nil
}

func (s *Service) sendByURL(ctx context.Context, chat tele.Recipient, url string) error {
	doc := &tele.Document{
		File:     tele.FromURL(url),
		FileName: s.opts.FileName,
		Caption:  s.opts.Caption,
	}
	if _, err := messenger.Send(ctx, s.sender, chat, doc); err != nil {
		return &DeliveryError{Tier: TierURL, Err: err}
	}
	return nil
}

func (s *Service) sendLink(ctx context.Context, chat tele.Recipient, userID int64, text string) {
	if _, err := messenger.Send(ctx, s.sender, chat, text, tele.NoPreview); err != nil {
		s.logTierFailure(ctx, userID, &DeliveryError{Tier: TierLink, Err: err})
	}
}

// fetch downloads url, insisting on HTTP 200 and a non-empty body.
func (s *Service) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	switch {
	case len(data) == 0:
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: errEmptyBody}
	case int64(len(data)) > s.opts.MaxBytes:
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: errTooLarge}
	}
	return data, nil
}

func (s *Service) logTierFailure(ctx context.Context, userID int64, err error) {
	tier := TierBytes
	var derr *DeliveryError
	if errors.As(err, &derr) {
		tier = derr.Tier
	}
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.Int64("user_id", userID),
		slog.String("tier", string(tier)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}
	var ferr *FetchError
	if errors.As(err, &ferr) && ferr.Status != 0 {
		attrs = append(attrs, slog.Int("http_status", ferr.Status))
	}
	logger.Warn(ctx, component, "tier", attrs...)
}

func (s *Service) logDelivered(ctx context.Context, userID int64, tier Tier, firstTime bool, start time.Time) {
	logger.Info(ctx, component, "deliver",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("tier", string(tier)),
		slog.Bool("first_time", firstTime),
		slog.Duration("duration", logger.Took(start)),
	)
}
