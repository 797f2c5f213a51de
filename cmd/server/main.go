package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "codemail/backend/docs"
	"codemail/backend/internal/auth"
	jwtpkg "codemail/backend/internal/auth/jwt"
	"codemail/backend/internal/clock"
	"codemail/backend/internal/config"
	"codemail/backend/internal/health"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/monitoring"
	"codemail/backend/internal/service"
	"codemail/backend/internal/smtp"
	"codemail/backend/internal/storage"
	"codemail/backend/internal/storage/hybrid"
	"codemail/backend/internal/storage/memory"
	"codemail/backend/internal/storage/redis"
	sqlstore "codemail/backend/internal/storage/sql"
	httptransport "codemail/backend/internal/transport/http"
	"codemail/backend/internal/websocket"
)

// 开发模式下未配置密码时使用
const devAdminPassword = "admin123"

// main 启动 HTTP API，按配置同时启动 SMTP 接收服务。
//
//	@title						TempMail SaaS API
//	@version					1.0.0
//	@description				访问码换取临时邮箱会话的接口。
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer <token>
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting codemail server",
		zap.String("version", httptransport.Version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	clk := clock.System{}

	store, redisClient, err := initializeStorage(cfg, clk, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()
	// hybrid.Store.Health 已包含 Redis 检查
	healthChecker := health.NewChecker(store, log)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AdminExpiry, clk)
	authService := auth.NewService(store, log, auth.WithClock(clk))
	ensureAdmin(authService, cfg, log)

	deps := service.Deps{
		Clock:   clk,
		IDs:     clock.UUIDSource{},
		Metrics: metrics,
		Logger:  log,
	}
	codeService := service.NewCodeService(store, cfg.Code, deps)
	mailboxService := service.NewMailboxService(store, cfg.Mailbox, deps)
	messageService := service.NewMessageService(store, cfg.Message, deps)
	sessionService := service.NewSessionService(codeService, mailboxService, jwtManager, deps)
	adminService := service.NewAdminService(authService, jwtManager, store, deps)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, metrics, log)

	// 多实例部署时新邮件事件经 Redis 广播，由各实例的 Hub 推送给本地连接
	var eventBus *redis.EventBus
	if redisClient != nil {
		eventBus = redis.NewEventBus(redisClient)
		messageService.SetNotifier(eventBus)
	} else {
		messageService.SetNotifier(wsHub)
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		CodeService:    codeService,
		SessionService: sessionService,
		MailboxService: mailboxService,
		MessageService: messageService,
		AdminService:   adminService,
		TokenVerifier:  jwtManager,
		WebSocketHub:   wsHub,
		Health:         healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		backend := smtp.NewBackend(cfg.Mailbox.Domain, store, messageService, clk, log)
		smtpServer = smtp.NewServer(cfg.SMTP, cfg.Message.MaxBodyBytes, backend)
		healthChecker.AddReadinessCheck("smtp", func() error {
			conn, err := net.DialTimeout("tcp", cfg.SMTP.BindAddr, time.Second)
			if err != nil {
				return err
			}
			return conn.Close()
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
				zap.String("mail_domain", cfg.Mailbox.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	if eventBus != nil {
		group.Go(func() error {
			log.Info("subscribing to new message events")
			err := eventBus.Subscribe(groupCtx, wsHub.NotifyNewMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event subscription error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if smtpServer != nil {
			if err := smtpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("SMTP server shutdown warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// initializeStorage 按配置选择存储：未配置数据库时使用内存存储，配置了 Redis 时在数据库前加缓存层
func initializeStorage(cfg *config.Config, clk clock.Clock, log *zap.Logger) (storage.Store, *redis.Client, error) {
	if cfg.Database.Type == "" {
		log.Info("using memory storage (development mode)")
		if cfg.Redis.Address != "" {
			log.Warn("redis is ignored without a database")
		}
		return memory.NewStore(), nil, nil
	}

	db, err := sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.Database.Type, err)
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))

	if cfg.Redis.Address == "" {
		return db, nil, nil
	}

	client, err := redis.New(cfg.Redis, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("using hybrid storage with redis cache",
		zap.String("redis", cfg.Redis.Address),
		zap.Duration("cache_ttl", cfg.Redis.CacheTTL),
	)
	return hybrid.NewStore(db, client, cfg.Redis.CacheTTL, clk, log), client, nil
}

// ensureAdmin 确保配置的管理员账号存在
func ensureAdmin(authService *auth.Service, cfg *config.Config, log *zap.Logger) {
	password := cfg.Admin.Password
	if password == "" {
		if !cfg.Log.Development {
			log.Warn("admin password not configured, skipping admin bootstrap",
				zap.String("username", cfg.Admin.Username))
			return
		}
		password = devAdminPassword
		log.Warn("using default admin password in development mode",
			zap.String("username", cfg.Admin.Username))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created, err := authService.EnsureAdmin(ctx, cfg.Admin.Username, password)
	if err != nil {
		log.Error("failed to ensure admin user", zap.Error(err))
		return
	}
	if created {
		log.Info("admin user created", zap.String("username", cfg.Admin.Username))
	}
}
