package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"clouddrive/internal/auth"
	"clouddrive/internal/config"
	"clouddrive/internal/database"
	"clouddrive/internal/encryption"
	"clouddrive/internal/grpcserver"
	"clouddrive/internal/handler"
	"clouddrive/internal/jobs"
	"clouddrive/internal/logs"
	"clouddrive/internal/middleware"
	"clouddrive/internal/notify"
	"clouddrive/internal/preview"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()
			return serve(ctx)
		},
	}
}

// memoryLimiters собирает лимитеры в памяти, чтобы задача очистки
// обходила их все.
type memoryLimiters struct {
	mu   sync.Mutex
	list []*middleware.MemoryLimiter
}

func (m *memoryLimiters) add(l *middleware.MemoryLimiter) *middleware.MemoryLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, l)
	return l
}

func (m *memoryLimiters) Cleanup(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, l := range m.list {
		removed += l.Cleanup(idle)
	}
	return removed
}

// newRateLimits выбирает Redis, если он настроен и отвечает, иначе
// лимиты считаются в памяти процесса.
func newRateLimits(ctx context.Context, cfg *config.Config) (handler.RateLimits, *memoryLimiters, func()) {
	rl := cfg.RateLimit
	limits := handler.RateLimits{Global: rl.Global, SignUp: rl.SignUp, SignIn: rl.SignIn}
	if !rl.Enabled {
		return limits, nil, func() {}
	}

	log := logs.WithComponent("ratelimit")
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.WithField("addr", cfg.Redis.Addr).Info("using redis rate limiter")
			limits.NewLimiter = func(limit int) middleware.Limiter {
				return middleware.NewRedisLimiter(rdb, "clouddrive:ratelimit", limit, rl.Window)
			}
			return limits, nil, func() { rdb.Close() }
		}
		log.WithError(err).Warn("redis unavailable, falling back to in-memory rate limiter")
		rdb.Close()
	}

	pool := &memoryLimiters{}
	limits.NewLimiter = func(limit int) middleware.Limiter {
		return pool.add(middleware.NewMemoryLimiter(limit, rl.Window))
	}
	return limits, pool, func() {}
}

func serve(ctx context.Context) error {
	cfg, closeLog, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeLog()
	log := logs.WithComponent("server")

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return errors.Wrap(err, "running migrations")
	}

	store, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	var publisher notify.Publisher
	switch cfg.Queue.Driver {
	case "amqp":
		pub := notify.NewAMQPPublisher(cfg.Queue.URL, cfg.Queue.Name)
		defer pub.Close()
		publisher = pub
		log.Info("notifications are published to AMQP, run `clouddrive worker` to deliver them")
	default:
		dispatcher, err := newDispatcher(cfg.Mail)
		if err != nil {
			return err
		}
		queue := notify.NewQueue(cfg.Queue.Buffer)
		publisher = queue
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Run(context.Background(), dispatcher)
		}()
		defer func() {
			queue.Close()
			wg.Wait()
		}()
	}
	notifier := notify.NewEventNotifier(publisher)

	repos := repository.New(db)
	hasher := encryption.NewService(cfg.Auth.BcryptCost)
	tokenManager := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})

	tokens := service.NewTokenService(repos, hasher, notifier, service.TokenConfig{
		VerificationTTL: cfg.Auth.VerificationTTL(),
		ResetTTL:        cfg.Auth.ResetTTL(),
		AppURL:          cfg.Server.AppURL,
		FrontendURL:     cfg.Server.FrontendURL,
	})
	perms := service.NewPermissionService(repos)
	items := service.NewDriveItemService(repos, perms, store)

	services := handler.Services{
		Auth:    service.NewAuthService(repos, tokens, hasher, tokenManager, notifier),
		Tokens:  tokens,
		Users:   service.NewUserService(repos.Users),
		Items:   items,
		Files:   service.NewFileService(repos, perms, store, preview.NewService(), cfg.Server.MaxUploadSize),
		Folders: service.NewFolderService(repos.Items),
		Perms:   perms,
	}

	limits, memLimiters, closeLimits := newRateLimits(ctx, cfg)
	defer closeLimits()

	router := handler.NewRouter(services, auth.NewMiddleware(tokenManager, repos.Users, handler.WriteError), db, handler.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimits:     limits,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpcserver.New(db, 15*time.Second)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go grpcServer.Watch(watchCtx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.ListenAndServe(cfg.Server.GRPCPort)
	}()
	go func() {
		log.Infof("starting HTTP server on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "starting HTTP server")
		}
	}()

	if cfg.Jobs.Enabled {
		var limiter jobs.LimiterCleaner
		if memLimiters != nil {
			limiter = memLimiters
		}
		scheduler := jobs.New(jobs.Config{TrashRetention: cfg.Jobs.TrashRetention}, tokens, items, limiter)
		names, err := scheduler.Register()
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.WithField("jobs", names).Info("scheduled jobs started")
	}

	serveErr := awaitStop(ctx, errCh)
	if serveErr != nil {
		log.WithError(serveErr).Error("server failed")
	}
	log.Info("shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()

	if serveErr != nil {
		return serveErr
	}
	log.Info("server exited properly")
	return nil
}

// awaitStop ждет отмены ctx или первой ошибки серверов и возвращает ее.
func awaitStop(ctx context.Context, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// exitOnSignal отменяет контекст по SIGINT или SIGTERM.
func exitOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
