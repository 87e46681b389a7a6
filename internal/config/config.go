package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/channelgate/core/config"
)

// ChannelConfig identifies the gated broadcast channel.
type ChannelConfig struct {
	// ID is the public @username of the channel.
	ID string `yaml:"id" envconfig:"CHANNEL_ID"`
	// Link is the public URL used in post footers.
	Link  string `yaml:"link" envconfig:"CHANNEL_LINK"`
	Title string `yaml:"title" envconfig:"CHANNEL_TITLE"`
}

// BonusConfig describes the reward document.
type BonusConfig struct {
	URL string `yaml:"url" envconfig:"BONUS_PDF_URL"`
	// LegacyURL is read from GOOGLE_DRIVE_PDF_URL and used when URL is empty.
	LegacyURL    string        `yaml:"-" envconfig:"GOOGLE_DRIVE_PDF_URL"`
	FileName     string        `yaml:"file_name" envconfig:"BONUS_FILE_NAME"`
	Caption      string        `yaml:"caption" envconfig:"BONUS_CAPTION"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" envconfig:"BONUS_FETCH_TIMEOUT"`
	MaxBytes     int64         `yaml:"max_bytes" envconfig:"BONUS_MAX_BYTES"`
}

// MembershipConfig tunes the channel membership check.
type MembershipConfig struct {
	Attempts    uint          `yaml:"attempts" envconfig:"MEMBERSHIP_ATTEMPTS"`
	SettleDelay time.Duration `yaml:"settle_delay" envconfig:"MEMBERSHIP_SETTLE_DELAY"`
	RetryDelay  time.Duration `yaml:"retry_delay" envconfig:"MEMBERSHIP_RETRY_DELAY"`
	// PromptDelay separates the "not subscribed" note from the join prompt after /check.
	PromptDelay time.Duration `yaml:"prompt_delay" envconfig:"MEMBERSHIP_PROMPT_DELAY"`
}

// StorageConfig controls the user state file.
type StorageConfig struct {
	Path          string        `yaml:"path" envconfig:"USERS_FILE"`
	FlushInterval time.Duration `yaml:"flush_interval" envconfig:"USERS_FLUSH_INTERVAL"`
}

// AdminConfig configures the HTTP control surface.
type AdminConfig struct {
	Listen string `yaml:"listen" envconfig:"ADMIN_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
}

// Addr returns the listen address, preferring Listen over Port.
func (a AdminConfig) Addr() string {
	if a.Listen != "" {
		return a.Listen
	}
	return ":" + strconv.Itoa(a.Port)
}

// PostConfig holds the initial promotional post. Description uses *marker* bold syntax.
type PostConfig struct {
	Title       string `yaml:"title" envconfig:"CHANNEL_POST_TITLE"`
	Description string `yaml:"description" envconfig:"CHANNEL_POST_DESCRIPTION"`
	Call        string `yaml:"call" envconfig:"CHANNEL_POST_CALL"`
	ButtonText  string `yaml:"button_text" envconfig:"CHANNEL_BUTTON_TEXT"`
	ImageURL    string `yaml:"image_url" envconfig:"IMAGE_URL"`
	Footer      string `yaml:"footer" envconfig:"CHANNEL_POST_FOOTER"`
}

// CopyConfig holds every user-facing string. {channel} and {button} are
// substituted at render time.
type CopyConfig struct {
	Greeting        string `yaml:"greeting" json:"greeting,omitempty"`
	JoinPrompt      string `yaml:"join_prompt" json:"join_prompt,omitempty"`
	JoinButton      string `yaml:"join_button" json:"join_button,omitempty"`
	ChecklistButton string `yaml:"checklist_button" json:"checklist_button,omitempty"`
	Checking        string `yaml:"checking" json:"checking,omitempty"`
	NotSubscribed   string `yaml:"not_subscribed" json:"not_subscribed,omitempty"`
	CheckFailed     string `yaml:"check_failed" json:"check_failed,omitempty"`
	FirstDelivery   string `yaml:"first_delivery" json:"first_delivery,omitempty"`
	RepeatDelivery  string `yaml:"repeat_delivery" json:"repeat_delivery,omitempty"`
	LinkFallback    string `yaml:"link_fallback" json:"link_fallback,omitempty"`
	ErrorFallback   string `yaml:"error_fallback" json:"error_fallback,omitempty"`
	Reminder        string `yaml:"reminder" json:"reminder,omitempty"`
	RateLimited     string `yaml:"rate_limited" json:"rate_limited,omitempty"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Channel    ChannelConfig    `yaml:"channel"`
	Bonus      BonusConfig      `yaml:"bonus"`
	Membership MembershipConfig `yaml:"membership"`
	Storage    StorageConfig    `yaml:"storage"`
	Admin      AdminConfig      `yaml:"admin"`
	Post       PostConfig       `yaml:"post"`
	Copy       CopyConfig       `yaml:"copy"`
}

// CoreConfig exposes the embedded framework configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the configuration from path and the environment and normalizes it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.Decode(path, cfg); err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Channel.ID = strings.TrimSpace(cfg.Channel.ID)
	if cfg.Channel.ID == "" {
		return fmt.Errorf("channel.id is required")
	}
	if !strings.HasPrefix(cfg.Channel.ID, "@") {
		cfg.Channel.ID = "@" + cfg.Channel.ID
	}
	if cfg.Channel.Link == "" {
		cfg.Channel.Link = "https://t.me/" + strings.TrimPrefix(cfg.Channel.ID, "@")
	}
	if cfg.Channel.Title == "" {
		cfg.Channel.Title = cfg.Channel.ID
	}

	if cfg.Bonus.URL == "" {
		cfg.Bonus.URL = cfg.Bonus.LegacyURL
	}
	if cfg.Bonus.URL == "" {
		return fmt.Errorf("bonus.url is required (BONUS_PDF_URL or GOOGLE_DRIVE_PDF_URL)")
	}
	setDefault(&cfg.Bonus.FileName, "checklist.pdf")
	setDefault(&cfg.Bonus.Caption, "Renovation preparation checklist")
	setDuration(&cfg.Bonus.FetchTimeout, 30*time.Second)
	if cfg.Bonus.MaxBytes <= 0 {
		cfg.Bonus.MaxBytes = 50 << 20
	}

	if cfg.Membership.Attempts == 0 {
		cfg.Membership.Attempts = 3
	}
	setDuration(&cfg.Membership.SettleDelay, 500*time.Millisecond)
	setDuration(&cfg.Membership.RetryDelay, time.Second)
	setDuration(&cfg.Membership.PromptDelay, time.Second)

	setDefault(&cfg.Storage.Path, ".data/users.json")
	setDuration(&cfg.Storage.FlushInterval, time.Minute)
	if cfg.Storage.FlushInterval < time.Second {
		return fmt.Errorf("storage.flush_interval must be at least 1s, got %s", cfg.Storage.FlushInterval)
	}

	if cfg.Admin.Listen == "" && cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}

	setDefault(&cfg.Post.Title, "A GIFT FOR YOU 🎁")
	setDefault(&cfg.Post.Description, "We prepared a detailed *checklist for every stage of renovation*, a simple tool that helps you:\n\n✔️ go through the renovation step by step\n✔️ avoid typical mistakes\n✔️ keep everything under control")
	setDefault(&cfg.Post.Call, "📥 Grab the checklist for free")
	setDefault(&cfg.Post.ButtonText, "GET THE GIFT")
	setDefault(&cfg.Post.Footer, "Build a cosy and practical home together with")

	c := &cfg.Copy
	setDefault(&c.Greeting, "Hi! Subscribe to {channel} and press the button to get the checklist.")
	setDefault(&c.JoinPrompt, "To get the renovation checklist, subscribe to {channel} and send /check to verify your subscription.")
	setDefault(&c.JoinButton, "Open the channel")
	setDefault(&c.ChecklistButton, "Get the checklist")
	setDefault(&c.Checking, "Checking your subscription...")
	setDefault(&c.NotSubscribed, "Unfortunately, you are not subscribed to the channel yet.")
	setDefault(&c.CheckFailed, "Something went wrong while checking your subscription. Please try again later.")
	setDefault(&c.FirstDelivery, "Thanks for subscribing! 🎁\n\nHere is your renovation checklist:")
	setDefault(&c.RepeatDelivery, "Here is your renovation checklist:")
	setDefault(&c.LinkFallback, "Sorry, the document could not be sent. Download the PDF here: {url}")
	setDefault(&c.ErrorFallback, "Something went wrong while sending the PDF. Download it here: {url}")
	setDefault(&c.Reminder, "To get the checklist, press \"{button}\" or send /check to verify your subscription.")
	setDefault(&c.RateLimited, "Too many requests, please slow down.")
	return nil
}

func setDefault(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}
