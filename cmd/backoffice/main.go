// cmd/backoffice/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/catalog"
	"bookstore/internal/circulation"
	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/logging"
	"bookstore/internal/membership"
	"bookstore/internal/server"
	"bookstore/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "backoffice: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	db, err := database.Open(ctx, cfg.Database.URL, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema up to date")
	}

	rentals := circulation.NewService(circulation.NewPostgresStore(db), log,
		circulation.WithReadFreshness(cfg.Overdue.ReadFreshness))
	books := catalog.NewService(db, log)
	users := membership.NewService(db, log)

	if cfg.Overdue.SweepEnabled {
		sweeper, err := circulation.NewSweeper(rentals, cfg.Overdue.SweepSchedule, log)
		if err != nil {
			return err
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	router := server.NewRouter(server.Handlers{
		Rentals: circulation.NewHandler(rentals, log),
		Catalog: catalog.NewHandler(books, log),
		Users:   membership.NewHandler(users, log),
	}, log, server.Options{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Ping:           db.PingContext,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("backoffice listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.WithField("timeout", cfg.HTTP.ShutdownTimeout).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return err
	}
	log.Info("server stopped")
	return nil
}
