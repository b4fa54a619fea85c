// cmd/sweep/main.go
//
// sweep promotes overdue rentals once and exits, for deployments that drive
// the sweep from an external scheduler instead of the server's own cron.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"bookstore/internal/circulation"
	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/logging"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database.URL, database.Options{MaxOpenConns: 2})
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

	svc := circulation.NewService(circulation.NewPostgresStore(db), log)
	res, err := svc.PromoteOverdue(ctx)
	if err != nil {
		log.WithError(err).Error("overdue sweep failed")
		db.Close()
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{"rentals": res.Rentals, "items": res.Items}).Info("overdue sweep finished")
}
