package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/josh-kwaku/statement-ledger/api"
	"github.com/josh-kwaku/statement-ledger/internal/auth"
	"github.com/josh-kwaku/statement-ledger/internal/config"
	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/events/kafka"
	"github.com/josh-kwaku/statement-ledger/internal/handler"
	"github.com/josh-kwaku/statement-ledger/internal/ledger"
	"github.com/josh-kwaku/statement-ledger/internal/logging"
	"github.com/josh-kwaku/statement-ledger/internal/middleware"
	"github.com/josh-kwaku/statement-ledger/internal/natsapi"
	"github.com/josh-kwaku/statement-ledger/internal/repository"
	"github.com/josh-kwaku/statement-ledger/internal/repository/memory"
	"github.com/josh-kwaku/statement-ledger/internal/service"
)

const idempotencySweepInterval = 10 * time.Minute

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type statementStore interface {
	Append(ctx context.Context, statements ...*domain.Statement) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Statement, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error)
}

type outboxStore interface {
	ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error
}

type idempotencyStore interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*domain.IdempotencyEntry, error)
	Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (bool, error)
	Set(ctx context.Context, entry *domain.IdempotencyEntry) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
	CleanExpired(ctx context.Context) (int64, error)
}

type accountLocker interface {
	Lock(ctx context.Context, ids ...uuid.UUID) (func(), error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// stores is the storage backend selected by STORAGE_DRIVER.
type stores struct {
	users       userStore
	statements  statementStore
	outbox      outboxStore
	idempotency idempotencyStore
	locks       accountLocker
	health      pinger
	close       func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("statement-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	engine := ledger.NewEngine(st.users, st.statements, st.locks)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiry)
	users := service.NewUserService(st.users, tokens)

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	dispatcher := service.NewEventDispatcher(st.outbox, publisher, logger.With("component", "event_dispatcher"), service.DispatcherConfig{
		Interval:     cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		ClaimTimeout: cfg.OutboxClaimTimeout,
	})

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		dispatcher.Start(ctx)
	}()
	go func() {
		defer workers.Done()
		sweepIdempotency(ctx, st.idempotency, logger)
	}()

	if cfg.NATSURL != "" {
		nc, responder, err := startNATS(cfg, engine, logger)
		if err != nil {
			slog.Error("failed to start nats responder", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := responder.Drain(); err != nil {
				slog.Warn("nats responder drain failed", "error", err)
			}
			nc.Close()
		}()
	}

	mux := routes(cfg, st, engine, users, tokens)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	workers.Wait()
	slog.Info("server stopped")
}

func routes(cfg *config.Config, st *stores, engine *ledger.Engine, users *service.UserService, tokens *auth.Tokens) http.Handler {
	userHandler := handler.NewUserHandler(users)
	authHandler := handler.NewAuthHandler(users)
	statementHandler := handler.NewStatementHandler(engine)
	healthHandler := handler.NewHealthHandler(st.health)

	authed := middleware.Auth(tokens)
	idempotent := middleware.Idempotency(st.idempotency, cfg.IdempotencyTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.OpenAPISpec))

	mux.HandleFunc("POST /api/v1/users", userHandler.Register)
	mux.HandleFunc("POST /api/v1/sessions", authHandler.Login)
	mux.Handle("GET /api/v1/profile", authed(http.HandlerFunc(userHandler.Profile)))

	mux.Handle("GET /api/v1/statements/balance", authed(http.HandlerFunc(statementHandler.Balance)))
	mux.Handle("GET /api/v1/statements/{statement_id}", authed(http.HandlerFunc(statementHandler.GetOperation)))
	mux.Handle("POST /api/v1/statements/{type}",
		middleware.Chain(http.HandlerFunc(statementHandler.Create), authed, idempotent))
	mux.Handle("POST /api/v1/statements/transfers/{user_id}",
		middleware.Chain(http.HandlerFunc(statementHandler.Transfer), authed, idempotent))

	return middleware.Chain(mux, middleware.Tracing, middleware.Logging, middleware.Recovery)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		statements := memory.NewStatementRepository()
		return &stores{
			users:       memory.NewUserRepository(),
			statements:  statements,
			outbox:      statements,
			idempotency: memory.NewIdempotencyRepository(),
			locks:       ledger.NewKeyedLocker(),
			close:       func() error { return nil },
		}, nil
	default:
		db, err := connectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:       repository.NewUserRepository(db),
			statements:  repository.NewStatementRepository(db),
			outbox:      repository.NewOutboxRepository(db),
			idempotency: repository.NewIdempotencyRepository(db),
			locks:       repository.NewAdvisoryLocker(db, max(1, cfg.DBMaxOpenConns/2)),
			health:      db,
			close:       db.Close,
		}, nil
	}
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeS) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

type publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("no kafka brokers configured, statement events go to the log")
		return service.NewLogPublisher(logger), func() {}
	}

	p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	slog.Info("publishing statement events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return p, func() {
		if err := p.Close(); err != nil {
			slog.Warn("kafka publisher close failed", "error", err)
		}
	}
}

func startNATS(cfg *config.Config, engine *ledger.Engine, logger *slog.Logger) (*nats.Conn, *natsapi.BalanceResponder, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("statement-ledger"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("startNATS: connect: %w", err)
	}

	responder := natsapi.NewBalanceResponder(engine, logger.With("component", "nats_balance"))
	if err := responder.Subscribe(nc, cfg.NATSBalanceSubject); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("startNATS: %w", err)
	}
	return nc, responder, nil
}

func sweepIdempotency(ctx context.Context, repo idempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				logger.Warn("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("idempotency sweep", "removed", n)
			}
		}
	}
}
