// Command reconcile runs one reconciliation sweep and exits non-zero when any
// loan drifted or could not be checked. Meant for cron and incident response.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"agrifin-loan-engine/internal/adapter/repository/mysql"
	"agrifin-loan-engine/internal/config"
	"agrifin-loan-engine/internal/infrastructure/db"
	"agrifin-loan-engine/internal/infrastructure/events"
	"agrifin-loan-engine/internal/logger"
	"agrifin-loan-engine/internal/usecase/reconcile"
)

func main() {
	loanID := flag.String("loan", "", "reconcile a single loan id instead of sweeping")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	svc := reconcile.NewService(
		mysql.NewLoanRepository(gdb),
		mysql.NewTransactionRepository(gdb),
		reconcile.WithPublisher(events.NewLog(log)),
		reconcile.WithLogger(log),
		reconcile.WithConcurrency(cfg.ReconcileConcurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var drifted []*reconcile.Report
	if *loanID != "" {
		rep, rerr := svc.Reconcile(ctx, *loanID)
		if rep != nil && rep.Drift {
			drifted = append(drifted, rep)
		}
		err = rerr
	} else {
		drifted, err = svc.ReconcileAll(ctx)
	}

	for _, rep := range drifted {
		log.Warnw("drift", "loan_id", rep.LoanID, "fields", rep.Fields, "breaks", rep.Breaks)
	}
	if err != nil {
		log.Errorw("reconcile failed", "error", err)
		logger.Sync()
		os.Exit(2)
	}
	if len(drifted) > 0 {
		logger.Sync()
		os.Exit(1)
	}
	log.Info("books agree")
}
