package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/wb6ya/Wisal-sub000/internal/audit"
	"github.com/wb6ya/Wisal-sub000/internal/auth"
	"github.com/wb6ya/Wisal-sub000/internal/bot"
	"github.com/wb6ya/Wisal-sub000/internal/config"
	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/inbox"
	"github.com/wb6ya/Wisal-sub000/internal/media"
	"github.com/wb6ya/Wisal-sub000/internal/message"
	"github.com/wb6ya/Wisal-sub000/internal/notify"
	"github.com/wb6ya/Wisal-sub000/internal/realtime"
	"github.com/wb6ya/Wisal-sub000/internal/reporting"
	"github.com/wb6ya/Wisal-sub000/internal/tasks"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/tenant"
	"github.com/wb6ya/Wisal-sub000/internal/webhook"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
	"github.com/wb6ya/Wisal-sub000/pkg/logger"
	"github.com/wb6ya/Wisal-sub000/pkg/utils"
)

const taskQueue = "inbox"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; deployed environments set variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env load failed", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	tenants := tenant.NewService(tenant.NewPostgresRepo(db))
	templates := template.NewService(template.NewPostgresRepo(db))
	auditLog := audit.NewService(audit.NewPostgresRepo(db))

	// Realtime: every instance keeps a local hub; the Redis broker relays across instances.
	hub := realtime.NewHub()
	var broker realtime.Broker = hub
	if cfg.Realtime.Backend == "redis" {
		rb := realtime.NewRedisBroker(rdb, hub, log)
		broker = rb
		go func() {
			// Run resubscribes on its own and only returns on shutdown.
			if err := rb.Run(rootCtx); err != nil {
				log.Error("realtime relay stopped", "err", err)
				stop()
			}
		}()
	}

	// Provider API + media
	wa := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL: cfg.WhatsApp.APIBaseURL,
		Version: cfg.WhatsApp.APIVersion,
		Timeout: cfg.WhatsApp.HTTPTimeout,
	})
	storage, err := media.NewLocalStorage(cfg.Media.Dir, cfg.Media.PublicBaseURL)
	if err != nil {
		log.Error("media storage init failed", "err", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.AMQP.URL != "" {
		n, err := notify.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Error("amqp init failed", "err", err)
			os.Exit(1)
		}
		defer n.Close()
		notifier = n
	}

	// Background tasks
	var (
		dispatcher  tasks.Dispatcher
		registry    tasks.Registry
		local       *tasks.LocalDispatcher
		asynqServer *tasks.AsynqServer
	)
	switch cfg.Tasks.Backend {
	case "local":
		local = tasks.NewLocalDispatcher(log, time.Minute)
		dispatcher, registry = local, local
	default:
		client := tasks.NewAsynqClient(cfg.RedisAddr(), taskQueue)
		defer client.Close()
		asynqServer = tasks.NewAsynqServer(cfg.RedisAddr(), taskQueue, cfg.Tasks.Concurrency, log)
		dispatcher, registry = client, asynqServer
	}

	svc, err := inbox.NewService(inbox.Deps{
		Tenants:         tenants,
		Conversations:   conversation.NewStore(conversation.NewPostgresRepo(db)),
		Messages:        message.NewStore(message.NewPostgresRepo(db)),
		Templates:       templates,
		Bot:             bot.NewEngine(templates),
		Gateway:         wa,
		Media:           media.NewRelay(wa, storage),
		Events:          broker,
		Tasks:           dispatcher,
		Notifier:        notifier,
		Audit:           auditLog,
		SendMediaByLink: cfg.Media.SendByLink,
	})
	if err != nil {
		log.Error("inbox init failed", "err", err)
		os.Exit(1)
	}
	svc.RegisterTasks(registry)

	if asynqServer != nil {
		go func() {
			if err := asynqServer.Run(rootCtx); err != nil {
				log.Error("task server failed", "err", err)
				stop()
			}
		}()
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		auth:     authManager,
		tenants:  tenants,
		inbox:    svc,
		audit:    auditLog,
		reports:  reporting.NewService(reporting.NewPostgresRepo(db)),
		broker:   broker,
		claims:   webhook.NewRedisClaimer(rdb, webhook.DefaultClaimTTL),
		mediaDir: storage.Dir,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if local != nil {
		local.Wait()
	}
}
