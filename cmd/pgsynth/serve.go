package pgsynth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edgeflare/pgsynth/pkg/config"
	"github.com/edgeflare/pgsynth/pkg/httputil"
	mw "github.com/edgeflare/pgsynth/pkg/httputil/middleware"
	"github.com/edgeflare/pgsynth/pkg/metrics"
	"github.com/edgeflare/pgsynth/pkg/openapi"
	"github.com/edgeflare/pgsynth/pkg/registry"
	"github.com/edgeflare/pgsynth/pkg/rest"
	"github.com/edgeflare/pgsynth/pkg/trigger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Starts the REST API server over the configured database. The schema is
introspected at startup and again whenever a reload trigger fires.`,
		RunE: runServe,
	}
	f := cmd.Flags()
	f.StringP("rest.listen_addr", "l", ":8080", "REST server listen address")
	f.String("rest.base_path", "", "path prefix for every generated route")
	f.Bool("rest.cors", true, "answer CORS preflight requests")
	f.StringSlice("rest.cors_origins", []string{"*"}, "origins allowed to call the API")
	f.Bool("reload.notify", false, "regenerate on NOTIFY <reload.channel>, 'reload schema'")
	f.String("reload.channel", "pgsynth", "notification channel")
	f.Duration("reload.interval", 0, "regenerate periodically (0 disables)")
	f.Bool("reload.watch_file", false, "regenerate when catalog.file changes")
	f.String("reload.nats.url", "", "NATS server to receive reload requests from")
	f.String("reload.nats.subject", "", "NATS subject carrying reload requests")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.addr", ":9100", "Prometheus metrics listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cfg.Database.ConnString == "" {
		return errors.New("serve requires database.conn_string")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg, err := newRegistry(cfg, pool, logger)
	if err != nil {
		return err
	}
	// the server answers 503 until a pass succeeds, so a failing first pass
	// is not fatal while a trigger can still recover it
	if _, err := reg.Regenerate(ctx); err != nil {
		logger.Error("initial generation failed", zap.Error(err))
	}

	router := newRouter(cfg, reg, rest.NewServer(reg, pool, rest.WithLogger(logger)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := router.ListenAndServe(cfg.REST.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return router.Shutdown(shutdownCtx)
	})
	if triggers := reloadTriggers(cfg, logger); len(triggers) > 0 {
		g.Go(func() error { return trigger.Run(gctx, reg, logger, triggers...) })
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error { return metrics.Serve(gctx, metrics.ServerOptions{Addr: cfg.Metrics.Addr, Logger: logger}) })
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func newRouter(c *config.Config, reg *registry.Registry, server *rest.Server) *httputil.Router {
	router := httputil.NewRouter(httputil.WithLogger(logger))
	router.Use(mw.RequestID, mw.LoggerWithOptions(&mw.LoggerOptions{
		Logger: logger,
		Skip:   func(r *http.Request) bool { return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/health") },
	}))
	if c.REST.CORS {
		router.Use(mw.CORSWithOptions(&mw.CORSOptions{AllowedOrigins: c.REST.CORSOrigins}))
	}
	router.Handle("GET /openapi.json", openapi.NewHandler(reg, openapi.Info{
		Title:       "pgsynth",
		Description: "REST API generated from the PostgreSQL schema",
		Version:     config.Version,
	}, ""))
	server.Register(router)
	return router
}

func reloadTriggers(c *config.Config, logger *zap.Logger) []trigger.Trigger {
	var triggers []trigger.Trigger
	r := c.Reload
	if r.Interval > 0 {
		triggers = append(triggers, trigger.NewInterval(r.Interval, logger))
	}
	if r.Notify {
		triggers = append(triggers, trigger.NewPGNotify(c.Database.ConnString, r.Channel, logger))
	}
	if r.WatchFile {
		triggers = append(triggers, trigger.NewFileWatch(c.Catalog.File, logger))
	}
	if r.NATS.URL != "" {
		triggers = append(triggers, trigger.NewNATS(r.NATS.URL, r.NATS.Subject, logger))
	}
	return triggers
}
