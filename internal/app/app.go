// Package app assembles the channel gate bot from configuration.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/channelgate/core/bootstrap"
	"github.com/m3rciful/channelgate/core/cmd"
	"github.com/m3rciful/channelgate/core/logger"
	coretelegram "github.com/m3rciful/channelgate/core/telegram"
	"github.com/m3rciful/channelgate/core/telegram/commands"
	"github.com/m3rciful/channelgate/core/telegram/router"
	"github.com/m3rciful/channelgate/internal/admin"
	"github.com/m3rciful/channelgate/internal/config"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/delivery"
	"github.com/m3rciful/channelgate/internal/gate"
	"github.com/m3rciful/channelgate/internal/handlers"
	"github.com/m3rciful/channelgate/internal/membership"
	"github.com/m3rciful/channelgate/internal/messenger"
	"github.com/m3rciful/channelgate/internal/publisher"
	"github.com/m3rciful/channelgate/internal/scheduler"
	"github.com/m3rciful/channelgate/internal/users"

	tele "gopkg.in/telebot.v4"
)

const (
	component       = "app"
	flushJobTimeout = 30 * time.Second
)

// App owns every long-lived component of the bot.
type App struct {
	cfg       *config.Config
	bot       *tele.Bot
	store     *users.Store
	settings  *content.Settings
	publisher *publisher.Publisher
	handlers  *handlers.Handlers
	registry  *coretelegram.Registry
	scheduler *scheduler.Service
	admin     *admin.Server

	// raw issues Bot API calls; it is bot.Raw outside tests.
	raw func(method string, payload interface{}) ([]byte, error)
}

// LoadConfig adapts config.Load to the runner.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	return config.Load(path)
}

// Bootstrap initializes logging, restores persisted users and connects to
// the platform.
func Bootstrap(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	store := users.NewStore(cfg.Storage.Path)
	var bot *tele.Bot
	err := bootstrap.Run(ctx, bootstrap.Options{
		Config: cfg.CoreConfig(),
		Steps: []bootstrap.Step{
			restoreStep(store),
			{Name: "telegram.bot", Run: func(context.Context) error {
				var err error
				bot, err = coretelegram.NewBot(cfg.CoreConfig())
				return err
			}},
		},
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, bot, store)
}

// restoreStep loads persisted users. An unreadable or undecodable file is
// logged and the bot starts with an empty store.
func restoreStep(store *users.Store) bootstrap.Step {
	return bootstrap.Step{
		Name: "users.restore",
		Run: func(ctx context.Context) error {
			err := store.Restore(ctx)
			var perr *users.PersistenceError
			if errors.As(err, &perr) {
				logger.Error(ctx, component, "users.restore",
					slog.String("status", "fail"),
					slog.String("err_code", perr.Code()),
					slog.String("path", perr.Path),
					slog.String("err", logger.SanitizeLimit(perr.Error(), 256)),
				)
				return nil
			}
			return err
		},
	}
}

// New wires the components around an existing bot and store.
func New(cfg *config.Config, bot *tele.Bot, store *users.Store) (*App, error) {
	if cfg == nil || bot == nil || store == nil {
		return nil, errors.New("app: config, bot and store are required")
	}

	botUsername := cfg.Telegram.BotUsername
	if botUsername == "" && bot.Me != nil {
		botUsername = bot.Me.Username
	}

	settings := content.New(cfg)
	channel := messenger.Channel(cfg.Channel.ID)

	verifier := membership.NewVerifier(bot, channel, store, membership.Options{
		Attempts:    cfg.Membership.Attempts,
		SettleDelay: cfg.Membership.SettleDelay,
		RetryDelay:  cfg.Membership.RetryDelay,
	})
	deliverer := delivery.NewService(bot, store, settings, coretelegram.BuildFetchClient(), delivery.Options{
		FileName:     cfg.Bonus.FileName,
		Caption:      cfg.Bonus.Caption,
		FetchTimeout: cfg.Bonus.FetchTimeout,
		MaxBytes:     cfg.Bonus.MaxBytes,
	})
	g := gate.New(verifier, deliverer, bot, settings)
	pub := publisher.New(bot, publisher.Options{
		Channel:      channel,
		ChannelLink:  cfg.Channel.Link,
		ChannelTitle: cfg.Channel.Title,
		Footer:       cfg.Post.Footer,
		BotUsername:  botUsername,
	})
	h := handlers.New(store, g, bot, settings, cfg.Membership.PromptDelay)

	a := &App{
		cfg:       cfg,
		bot:       bot,
		store:     store,
		settings:  settings,
		publisher: pub,
		handlers:  h,
		registry:  buildRegistry(h),
		scheduler: scheduler.New(time.Local),
		raw:       bot.Raw,
	}
	a.admin = admin.New(cfg.Admin.Addr(), admin.Deps{
		Store:     store,
		Settings:  settings,
		Publisher: pub,
		Prober:    deliverer,
		Identity:  a.identity,
	})

	if _, err := a.scheduler.Every(cfg.Storage.FlushInterval, scheduler.Job{
		Name:    "users.flush",
		Timeout: flushJobTimeout,
		Run:     store.Persist,
	}); err != nil {
		return nil, fmt.Errorf("app: schedule flush: %w", err)
	}
	return a, nil
}

func buildRegistry(h *handlers.Handlers) *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.OnStart,
		Description: "Get the checklist",
	})
	reg.RegisterCommand("/check", commands.Command{
		Handler:     h.OnCheck,
		Description: "Check the channel subscription",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.OnStats,
		Description: "User statistics",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/save", commands.Command{
		Handler:     h.OnSave,
		Description: "Persist users now",
		AdminOnly:   true,
	})
	reg.SetTextFallback(h.OnText)
	return reg
}

// Registry exposes the command registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

// Admin exposes the HTTP control surface.
func (a *App) Admin() *admin.Server { return a.admin }

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Bot:         a.bot,
		Middlewares: coretelegram.DefaultMiddlewares(core, a.handlers.RateLimited),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	if err := a.admin.Start(ctx); err != nil {
		return fmt.Errorf("app: admin server: %w", err)
	}
	a.scheduler.Start()
	logger.Info(ctx, component, "started",
		slog.String("channel", a.cfg.Channel.ID),
		slog.String("admin_addr", a.cfg.Admin.Addr()),
		slog.String("deep_link", a.publisher.DeepLink()),
		slog.Int("users", a.store.Stats().Users),
	)
	return nil
}

// onStop drains background work and writes the final snapshot. Every step
// runs even when an earlier one fails.
func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	a.scheduler.Stop(ctx)
	adminErr := a.admin.Shutdown(ctx)
	persistErr := a.store.Persist(ctx)
	logger.Info(ctx, component, "stopped",
		slog.String("status", logger.Status(persistErr)),
		slog.Int("users", a.store.Stats().Users),
	)
	return errors.Join(adminErr, persistErr)
}

// identity asks the platform for the bot account on every call.
func (a *App) identity(context.Context) (admin.BotIdentity, error) {
	data, err := a.raw("getMe", nil)
	if err != nil {
		return admin.BotIdentity{}, fmt.Errorf("getMe: %w", err)
	}
	var resp struct {
		Result *tele.User `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return admin.BotIdentity{}, fmt.Errorf("getMe: decode: %w", err)
	}
	if resp.Result == nil {
		return admin.BotIdentity{}, errors.New("getMe: empty result")
	}
	return admin.BotIdentity{
		ID:        resp.Result.ID,
		FirstName: resp.Result.FirstName,
		Username:  resp.Result.Username,
	}, nil
}
