// Package admin exposes the operator HTTP surface: stats, persistence
// triggers, channel publishing, copy editing, exports and diagnostics.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/delivery"
	"github.com/m3rciful/channelgate/internal/users"
)

const component = "admin"

// Store is the user store as seen by operators.
type Store interface {
	Snapshot() []users.Record
	Stats() users.Stats
	Clear() int
	Persist(ctx context.Context) error
}

// Settings is the runtime-editable content.
type Settings interface {
	BonusURL() string
	SetBonusURL(raw string) error
	Post() content.Post
	SetPost(title, description, call, buttonText, imageURL string) (content.Post, error)
	Copy() content.Copy
	UpdateCopy(patch content.Copy) content.Copy
}

// Publisher posts to the channel.
type Publisher interface {
	Publish(ctx context.Context, post content.Post) (string, error)
}

// Prober inspects the document URL.
type Prober interface {
	Probe(ctx context.Context, url string) (delivery.ProbeResult, error)
}

// BotIdentity describes the running bot.
type BotIdentity struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Deps groups the collaborators behind the endpoints.
type Deps struct {
	Store     Store
	Settings  Settings
	Publisher Publisher
	Prober    Prober
	// Identity queries the platform for the bot account.
	Identity func(ctx context.Context) (BotIdentity, error)
}

// Server is the admin HTTP server.
type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
}

// New builds the server and its routes; it does not listen yet.
func New(addr string, deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{deps: deps, engine: engine}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, component, "listen",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
	)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), component, "serve",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	logger.Info(ctx, component, "shutdown", slog.String("status", logger.Status(err)))
	return err
}

func (s *Server) routes() {
	s.engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	s.engine.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/admin") })

	admin := s.engine.Group("/admin")
	{
		admin.GET("", s.overview)
		admin.POST("/save", s.save)
		admin.POST("/clear", s.clear)
		admin.POST("/publish", s.publish)
		admin.POST("/publish/current", s.publishCurrent)
		admin.POST("/bonus-url", s.updateBonusURL)
		admin.PUT("/copy", s.updateCopy)
		admin.GET("/export/users.csv", s.exportCSV)
		admin.GET("/export/users.json", s.exportJSON)
		admin.GET("/probe", s.probe)
		admin.GET("/bot", s.bot)
	}
}
