// Command postloaderd serves blog posts over HTTP through the post loader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ammar0144/postloader"
	"github.com/ammar0144/postloader/pkg/admin"
	"github.com/ammar0144/postloader/pkg/config"
	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/httpapi"
	"github.com/ammar0144/postloader/pkg/loader"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	migrate := flag.Bool("migrate", false, "create tables and views before serving")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "postloaderd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return err
	}
	defer manager.Close()

	if migrate {
		if err := manager.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema migrated", zap.String("driver", manager.Dialect().Name()))
	}

	c, closeCache, err := postloader.NewCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	base, err := cfg.Loader.QueryConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Loader.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := httpapi.Deps{
		Store:       manager,
		Cache:       c,
		Base:        base,
		Location:    loc,
		MaxPageSize: cfg.Loader.MaxPageSize,
		Metrics:     loader.NewMetrics("postloader", reg),
		Gatherer:    reg,
		Health:      manager,
		Logger:      logger,
	}
	if cfg.HTTP.EnableAdmin {
		deps.Admin = admin.NewService(manager, c,
			admin.WithTenant(cfg.Loader.Tenant),
			admin.WithLogger(logger.Named("admin")))
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      httpapi.NewServer(deps).Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("address", cfg.HTTP.Address),
			zap.String("cache", cfg.Cache.Backend),
			zap.Bool("admin", cfg.HTTP.EnableAdmin))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
