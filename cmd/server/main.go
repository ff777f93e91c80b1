package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/config"
	"github.com/iliyamo/gate-redemption/internal/database"
	"github.com/iliyamo/gate-redemption/internal/handler"
	"github.com/iliyamo/gate-redemption/internal/issuance"
	"github.com/iliyamo/gate-redemption/internal/lookup"
	"github.com/iliyamo/gate-redemption/internal/middleware"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/override"
	"github.com/iliyamo/gate-redemption/internal/queue"
	"github.com/iliyamo/gate-redemption/internal/redemption"
	"github.com/iliyamo/gate-redemption/internal/repository"
	"github.com/iliyamo/gate-redemption/internal/router"
	"github.com/iliyamo/gate-redemption/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("env", cfg.Env)
	slog.SetDefault(logger)

	policy, err := cfg.Policy()
	if err != nil {
		log.Fatalf("redemption policy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ping := openStore(ctx, cfg, logger)
	clk := clock.Real()

	engineOpts := []redemption.Option{
		redemption.WithClock(clk),
		redemption.WithTimeout(cfg.RedeemTimeout),
		redemption.WithLogger(logger),
	}
	ovCfg := override.Config{
		MinJustification: cfg.MinJustification,
		Timeout:          cfg.RedeemTimeout,
		Clock:            clk,
		Logger:           logger,
	}
	var pub *service.Publisher
	if cfg.RabbitURL != "" {
		pub = service.NewPublisher(cfg.RabbitURL, logger)
		engineOpts = append(engineOpts, redemption.WithNotifier(pub))
		ovCfg.Notifier = pub
	}

	engine := redemption.NewEngine(store, policy, engineOpts...)
	lk := lookup.NewService(store, policy, clk, cfg.CodeLength, cfg.SearchLimit)
	ov := override.NewService(store, policy, ovCfg)

	var limiter echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		defer rdb.Close()
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, clk, logger)
	} else {
		logger.Warn("redis unreachable, rate limiting disabled")
	}

	if cfg.AuditConsumer && cfg.RabbitURL != "" {
		oc := &queue.OverrideConsumer{URL: cfg.RabbitURL, LogPath: cfg.AuditLogPath, Logger: logger}
		go func() {
			if err := oc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("override consumer stopped", "error", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "path", v.URIPath, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "operator_id", middleware.OperatorID(c)}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error.Error())
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	router.Register(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Ping:      ping,
		Auth: handler.NewAuthHandler(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute,
			cfg.ScannerPINHash, cfg.SupervisorPINHash, clk),
		Tickets:   handler.NewTicketHandler(engine, lk),
		Overrides: handler.NewOverrideHandler(ov),
		Limiter:   limiter,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "policy", policy.Kind(), "store", cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if pub != nil {
		pub.Wait()
	}
}

// openStore returns the configured ticket store and a health probe for it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.TicketStore, func(context.Context) error) {
	if cfg.StoreDriver == config.DriverMemory {
		store := repository.NewMemoryStore()
		seedDemo(ctx, store, cfg, logger)
		return store, nil
	}

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		LockWaitSeconds: cfg.DBLockWaitSec,
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return repository.NewMySQLStore(db), db.PingContext
}

func seedDemo(ctx context.Context, store *repository.MemoryStore, cfg config.Config, logger *slog.Logger) {
	is := issuance.NewIssuer(store, cfg.CodeLength)
	for i := 0; i < cfg.DemoTickets; i++ {
		cat := model.CategorySingle
		if i%2 == 1 {
			cat = model.CategoryMulti
		}
		t, err := is.Issue(ctx, issuance.Request{HolderName: "Demo Holder", Category: cat})
		if err != nil {
			log.Fatalf("seed demo tickets: %v", err)
		}
		logger.Info("demo ticket", "id", t.ID, "code", t.Code, "category", t.Category)
	}
}
