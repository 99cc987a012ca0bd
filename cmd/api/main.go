package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	httpadp "agrifin-loan-engine/internal/adapter/http"
	"agrifin-loan-engine/internal/adapter/middleware"
	"agrifin-loan-engine/internal/adapter/repository/mysql"
	"agrifin-loan-engine/internal/config"
	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/uow"
	"agrifin-loan-engine/internal/infrastructure/cache"
	"agrifin-loan-engine/internal/infrastructure/db"
	"agrifin-loan-engine/internal/infrastructure/events"
	"agrifin-loan-engine/internal/infrastructure/lock"
	"agrifin-loan-engine/internal/logger"
	ucApproval "agrifin-loan-engine/internal/usecase/approval"
	ledgeruc "agrifin-loan-engine/internal/usecase/ledger"
	ucLoan "agrifin-loan-engine/internal/usecase/loan"
	"agrifin-loan-engine/internal/usecase/reconcile"
)

func main() {
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
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	checks := map[string]httpadp.Pinger{"db": sqlDB.PingContext}

	// redis backs idempotency, the shared lock and the event channel; without
	// it the service still runs single-replica.
	var rdb *redis.Client
	if r, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
		if cfg.LockBackend == config.LockRedis {
			log.Fatalf("redis: %v", err)
		}
		log.Warnw("redis unavailable, idempotency keys and event channel disabled", "error", err)
	} else {
		rdb = r
		defer rdb.Close()
		checks["redis"] = cache.Pinger(rdb)
	}

	var locker uow.Locker = lock.NewLocal()
	if cfg.LockBackend == config.LockRedis {
		locker = lock.NewRedis(rdb, lock.WithTTL(cfg.LockTimeout))
	}

	var pub event.Publisher = events.NewLog(log)
	if rdb != nil {
		pub = events.Multi{events.NewLog(log), events.NewRedis(rdb, cfg.EventsChannel)}
	}

	// repositories + unit of work
	loans := mysql.NewLoanRepository(gdb)
	txs := mysql.NewTransactionRepository(gdb)
	apprs := mysql.NewApprovalRepository(gdb)
	tx := mysql.NewGormUoW(gdb, locker)

	poster := ledgeruc.NewPoster(tx,
		ledgeruc.WithPublisher(pub),
		ledgeruc.WithLogger(log),
		ledgeruc.WithTimeout(cfg.OperationTimeout),
	)
	loanUC := ucLoan.NewUsecase(loans, txs, tx, poster,
		ucLoan.WithLocker(locker),
		ucLoan.WithLogger(log),
		ucLoan.WithPolicy(ucLoan.Policy{DefaultAfterMissed: cfg.DefaultAfterMissed}),
	)
	approvalUC := ucApproval.NewUsecase(loans, apprs, poster)
	rec := reconcile.NewService(loans, txs,
		reconcile.WithPublisher(pub),
		reconcile.WithLogger(log),
		reconcile.WithConcurrency(cfg.ReconcileConcurrency),
	)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.RequestLogger(log), echomw.Recover())

	var loanMW []echo.MiddlewareFunc
	if rdb != nil {
		ttl := time.Duration(cfg.IdempTTLSecs) * time.Second
		loanMW = append(loanMW, middleware.IdempotencyMiddleware(rdb, ttl, log))
	}
	httpadp.Register(e,
		httpadp.NewHandler(checks),
		httpadp.NewLoanHandler(loanUC, rec),
		httpadp.NewApprovalHandler(approvalUC),
		loanMW...,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reconcile.NewScheduler(rec, cfg.ReconcileInterval).Run(ctx)

	go func() {
		addr := ":" + cfg.AppPort
		log.Infow("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
}
