package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/channelgate/core/config"
	"github.com/m3rciful/channelgate/core/logger"
)

// Step is a named initialization hook executed after the logger is ready.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Steps      []Step
}

// Run initializes the logger and then executes every step in order.
// The first failing step aborts the pipeline.
func Run(ctx context.Context, opts Options) error {
	if opts.Config == nil {
		return fmt.Errorf("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	for _, step := range opts.Steps {
		if step.Run == nil {
			continue
		}
		start := time.Now()
		if err := step.Run(ctx); err != nil {
			logger.Error(ctx, "app", "bootstrap.step",
				slog.String("status", "fail"),
				slog.String("step", step.Name),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("bootstrap: %s failed: %w", step.Name, err)
		}
		logger.Info(ctx, "app", "bootstrap.step",
			slog.String("status", "ok"),
			slog.String("step", step.Name),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return nil
}
