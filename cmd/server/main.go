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

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/database"
	"github.com/mailmerge/mailmerge/internal/email"
	"github.com/mailmerge/mailmerge/internal/handler"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/middleware"
	"github.com/mailmerge/mailmerge/internal/repository"
	"github.com/mailmerge/mailmerge/internal/router"
	"github.com/mailmerge/mailmerge/internal/service"
	"github.com/mailmerge/mailmerge/internal/spreadsheet"
	"github.com/mailmerge/mailmerge/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	log.Info().Str("version", handler.Version).Msg("starting mail merge bot")
	log.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Str("provider", cfg.Mail.Provider).
		Str("smtp", cfg.Mail.SMTP.Addr()).
		Str("sender", cfg.Mail.Address).
		Msg("configuration loaded")

	// Prepare the data directory
	fs := afero.NewOsFs()
	workspace := storage.NewWorkspace(fs, cfg.Storage.DataDir)
	if err := workspace.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare data directory")
	}

	// Session store and rate limit counter
	var (
		rdb     *database.Redis
		store   repository.SessionStore
		counter middleware.Counter
	)
	if cfg.Session.Store == "redis" {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("connected to Redis")

		store = repository.NewRedisSessionStore(rdb, cfg.Session.TTL)
		counter = rdb
	} else {
		store = repository.NewMemorySessionStore()
		counter = middleware.NewMemoryCounter()
	}

	// Mail transport
	dialer, err := email.NewDialer(cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mail transport")
	}

	// Chat transport
	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Telegram")
	}
	bot.Debug = cfg.Bot.Debug
	log.Info().Str("bot", bot.Self.UserName).Msg("authorized on Telegram")
	tg := handler.NewTelegram(bot)

	// Initialize services
	reader := spreadsheet.NewReader(fs)
	composer := email.NewComposer(fs, email.ComposerConfig{
		FromAddress: cfg.Mail.Address,
		FromName:    cfg.Mail.FromName,
		Strict:      cfg.Dispatch.RequireAttachment,
	}, log)

	sessionSvc := service.NewSessionService(store, workspace, log)
	dispatchSvc := service.NewDispatchService(reader, dialer, composer, cfg.Dispatch, log)
	conversationSvc := service.NewConversationService(sessionSvc, dispatchSvc, tg, workspace, reader, cfg.Dispatch, cfg.Mail.Address, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Nothing from a previous process is resumed
	if _, err := sessionSvc.Purge(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to purge leftover sessions")
	}

	// Initialize handlers, middleware and router
	h := handler.New(tg, conversationSvc, rdb, log)
	mw := middleware.New(log, cfg.RateLimit, counter)
	rt := router.New(h, mw, log)

	g, gctx := errgroup.WithContext(ctx)

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = int(cfg.Bot.PollTimeout.Seconds())
	updates := bot.GetUpdatesChan(updateCfg)
	h.MarkReady()
	log.Info().Msg("listening for updates")

	g.Go(func() error {
		return rt.Run(gctx, updates)
	})
	g.Go(func() error {
		<-gctx.Done()
		bot.StopReceivingUpdates()
		return nil
	})

	if cfg.Health.Addr != "" {
		srv := &http.Server{
			Addr:         cfg.Health.Addr,
			Handler:      router.NewHealthMux(h),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.Health.Addr).Msg("health server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("bot stopped")
}
