package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/logging"
	"github.com/Sternrassler/drinks-fyi/pkg/web"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		watchConfig  bool
		primeOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server.

The search index is built before the listener starts. With --prime every
route is loaded into the cache and the CDN is purged once the server is up.
With --watch-config the server shuts down gracefully when the configuration
file changes so that the supervisor restarts it with the new settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), c, watchConfig, primeOnStart)
		},
	}

	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "shut down when the config file changes")
	cmd.Flags().BoolVar(&primeOnStart, "prime", false, "prime every route after startup")
	return cmd
}

func serve(ctx context.Context, c *cli, watchConfig, primeOnStart bool) error {
	logger := c.logger

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchConfig && c.configPath != "" {
		wctx, cancel, err := untilModified(ctx, c.configPath)
		if err != nil {
			return err
		}
		defer cancel()
		ctx = wctx
	}

	a, err := newApp(ctx, c.cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.loader.Reindex(ctx); err != nil {
		return err
	}

	authn, err := a.newAuth()
	if err != nil {
		return err
	}

	srv, err := web.New(web.Deps{
		Store:         a.store,
		Loader:        a.loader,
		Primer:        a.primer,
		Auth:          authn,
		Cache:         a.cache,
		WebhookSecret: []byte(c.cfg.Webhook.Secret),
		Policy: cache.Policy{
			BrowserMaxAge: c.cfg.Cache.BrowserMaxAge,
			EdgeMaxAge:    c.cfg.Cache.EdgeMaxAge,
		},
		Logger: logging.NewLogger("web"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(c.cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
			logger.Info().Str("reason", cause.Error()).Msg("Shutting down")
		} else {
			logger.Info().Msg("Shutting down")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if primeOnStart {
		g.Go(func() error {
			a.primer.PrimeAll(gctx)
			return nil
		})
	}

	return g.Wait()
}
