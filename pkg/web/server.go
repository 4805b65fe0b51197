// Package web serves the public drink pages, the admin interface, the content
// webhook and operational endpoints over echo.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/auth"
	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/loader"
	"github.com/Sternrassler/drinks-fyi/pkg/metrics"
	"github.com/Sternrassler/drinks-fyi/pkg/prime"
	"github.com/Sternrassler/drinks-fyi/pkg/webhook"
)

// Store is the content store used by the admin interface.
type Store interface {
	ListDrinks(ctx context.Context) ([]drinks.Drink, error)
	GetDrink(ctx context.Context, slug string) (*drinks.Drink, error)
	CreateDrink(ctx context.Context, d *drinks.Drink) error
	UpdateDrink(ctx context.Context, slug string, d *drinks.Drink) error
	DeleteDrink(ctx context.Context, slug string) (*drinks.Drink, error)
	Ping(ctx context.Context) error
}

// Primer runs the prime pipeline.
type Primer interface {
	Prime(ctx context.Context, change prime.Change) *prime.Report
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server.
type Deps struct {
	Store  Store
	Loader *loader.Loader
	Primer Primer
	Auth   *auth.Authenticator

	// Cache is pinged by /healthz. Optional.
	Cache Pinger

	// WebhookSecret signs content webhook deliveries.
	WebhookSecret []byte

	// Policy sets Cache-Control for public pages.
	Policy cache.Policy

	// PrimeTimeout bounds background prime runs after admin edits.
	PrimeTimeout time.Duration

	Logger zerolog.Logger
}

// Server is the HTTP front end.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	logger zerolog.Logger

	// background prime runs started by admin mutations
	bg sync.WaitGroup
}

// New builds the server and registers every route.
func New(deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Loader == nil || deps.Primer == nil || deps.Auth == nil {
		return nil, errors.New("store, loader, primer and auth are required")
	}
	if deps.PrimeTimeout <= 0 {
		deps.PrimeTimeout = 2 * time.Minute
	}

	r, err := newRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = r

	s := &Server{deps: deps, echo: e, logger: deps.Logger}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(deps.Logger))
	e.Use(middleware.Recover())

	e.GET("/", s.home)
	e.GET("/drinks/:slug", s.drink)
	e.GET("/tags", s.tags)
	e.GET("/tags/:tag", s.tag)
	e.GET("/search", s.search)

	e.StaticFS("/static", Static())
	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/webhooks/content", webhook.Handler(deps.WebhookSecret, deps.Primer, deps.Logger.With().Str("component", "webhook").Logger()))

	e.GET(auth.LoginPath, s.loginForm, noStore)
	e.POST(auth.LoginPath, s.login, noStore)

	admin := e.Group("/admin", noStore, deps.Auth.RequireAdmin)
	admin.GET("", s.adminList)
	admin.POST("/logout", s.logout)
	admin.POST("/prime", s.adminPrimeAll)
	admin.GET("/drinks/new", s.newDrinkForm)
	admin.POST("/drinks", s.createDrink)
	admin.GET("/drinks/:slug/edit", s.editDrinkForm)
	admin.POST("/drinks/:slug", s.updateDrink)
	admin.POST("/drinks/:slug/delete", s.deleteDrink)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight requests and
// background prime runs.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("waiting for background prime: %w", ctx.Err()))
	}
	return err
}

// Wait blocks until background prime runs have finished.
func (s *Server) Wait() {
	s.bg.Wait()
}

// primeAsync runs the prime pipeline for change without blocking the request.
func (s *Server) primeAsync(change prime.Change) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.PrimeTimeout)
		defer cancel()
		s.deps.Primer.Prime(ctx, change)
	}()
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	check := func(name string, p Pinger) {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	check("database", s.deps.Store)
	if s.deps.Cache != nil {
		check("redis", s.deps.Cache)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if resp.Status != "ok" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
