// Package content holds the runtime-editable bot copy, bonus link and
// promotional post. Operators change it through the admin surface and the
// next chat event sees the new values.
package content

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/m3rciful/channelgate/core/telegram/format"
	"github.com/m3rciful/channelgate/internal/config"
)

// Copy is the set of user-facing strings.
type Copy = config.CopyConfig

// Post is a promotional channel post. Description is stored as HTML.
type Post struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Call        string `json:"call"`
	ButtonText  string `json:"button_text"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Settings is safe for concurrent use.
type Settings struct {
	mu sync.RWMutex

	channel  string
	bonusURL string
	post     Post
	copy     Copy
}

// New seeds Settings from configuration.
func New(cfg *config.Config) *Settings {
	return &Settings{
		channel:  cfg.Channel.ID,
		bonusURL: cfg.Bonus.URL,
		post: Post{
			Title:       cfg.Post.Title,
			Description: format.Description(cfg.Post.Description),
			Call:        cfg.Post.Call,
			ButtonText:  cfg.Post.ButtonText,
			ImageURL:    cfg.Post.ImageURL,
		},
		copy: cfg.Copy,
	}
}

// BonusURL returns the current document URL.
func (s *Settings) BonusURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bonusURL
}

// SetBonusURL replaces the document URL after validating it.
func (s *Settings) SetBonusURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validateURL(raw); err != nil {
		return err
	}
	s.mu.Lock()
	s.bonusURL = raw
	s.mu.Unlock()
	return nil
}

// Post returns a copy of the current post.
func (s *Settings) Post() Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.post
}

// SetPost stores a post from operator input. The description uses *marker*
// bold syntax and is converted to HTML. Empty fields keep their current value,
// except ImageURL which may be cleared.
func (s *Settings) SetPost(title, description, call, buttonText, imageURL string) (Post, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL != "" {
		if err := validateURL(imageURL); err != nil {
			return Post{}, fmt.Errorf("image url: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v := strings.TrimSpace(title); v != "" {
		s.post.Title = v
	}
	if strings.TrimSpace(description) != "" {
		s.post.Description = format.Description(description)
	}
	if v := strings.TrimSpace(call); v != "" {
		s.post.Call = v
	}
	if v := strings.TrimSpace(buttonText); v != "" {
		s.post.ButtonText = v
	}
	s.post.ImageURL = imageURL
	return s.post, nil
}

// Copy returns the raw copy templates.
func (s *Settings) Copy() Copy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copy
}

// UpdateCopy overwrites every non-empty field of patch.
func (s *Settings) UpdateCopy(patch Copy) Copy {
	s.mu.Lock()
	defer s.mu.Unlock()
	merge(&s.copy.Greeting, patch.Greeting)
	merge(&s.copy.JoinPrompt, patch.JoinPrompt)
	merge(&s.copy.JoinButton, patch.JoinButton)
	merge(&s.copy.ChecklistButton, patch.ChecklistButton)
	merge(&s.copy.Checking, patch.Checking)
	merge(&s.copy.NotSubscribed, patch.NotSubscribed)
	merge(&s.copy.CheckFailed, patch.CheckFailed)
	merge(&s.copy.FirstDelivery, patch.FirstDelivery)
	merge(&s.copy.RepeatDelivery, patch.RepeatDelivery)
	merge(&s.copy.LinkFallback, patch.LinkFallback)
	merge(&s.copy.ErrorFallback, patch.ErrorFallback)
	merge(&s.copy.Reminder, patch.Reminder)
	merge(&s.copy.RateLimited, patch.RateLimited)
	return s.copy
}

// Texts returns the copy with {channel}, {button} and {url} substituted.
func (s *Settings) Texts() Copy {
	s.mu.RLock()
	c := s.copy
	r := strings.NewReplacer(
		"{channel}", s.channel,
		"{button}", s.copy.ChecklistButton,
		"{url}", s.bonusURL,
	)
	s.mu.RUnlock()

	for _, f := range []*string{
		&c.Greeting, &c.JoinPrompt, &c.JoinButton, &c.ChecklistButton,
		&c.Checking, &c.NotSubscribed, &c.CheckFailed, &c.FirstDelivery,
		&c.RepeatDelivery, &c.LinkFallback, &c.ErrorFallback, &c.Reminder,
		&c.RateLimited,
	} {
		*f = r.Replace(*f)
	}
	return c
}

// ChannelURL returns the public t.me link of the gated channel.
func (s *Settings) ChannelURL() string {
	return "https://t.me/" + strings.TrimPrefix(s.channel, "@")
}

func merge(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q: want http(s) with host", raw)
	}
	return nil
}
