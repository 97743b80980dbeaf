package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-telegram-contest/internal/assistant"
	"github.com/ad/go-telegram-contest/internal/config"
	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/handlers"
	"github.com/ad/go-telegram-contest/internal/intake"
	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/ad/go-telegram-contest/internal/services"
	"github.com/ad/go-telegram-contest/internal/spreadsheet"
	"github.com/ad/go-telegram-contest/internal/sweeper"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store db.RowStore
	switch cfg.StoreBackend {
	case config.BackendSheets:
		sheets, err := spreadsheet.NewFromCredentialsFile(ctx, cfg.SpreadsheetID, cfg.GoogleCredentialsFile)
		if err != nil {
			log.Fatalf("Failed to open spreadsheet: %v", err)
		}
		store = sheets
	default:
		sqlDB, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer sqlDB.Close()

		if err := db.InitSchema(sqlDB); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}

		dbQueue := db.NewDBQueue(sqlDB)
		defer dbQueue.Close()
		store = db.NewSQLiteStore(dbQueue)
	}

	adminConfigRepo := db.NewAdminConfigRepository(store)
	adminStateRepo := db.NewAdminStateRepository(store)
	checkpointRepo := db.NewCheckpointRepository(store)
	submissionRepo := db.NewSubmissionRepository(store)
	participantRepo := db.NewParticipantRepository(store)
	ratingRepo := db.NewRatingRepository(store)

	settingsManager := services.NewSettingsManager(adminConfigRepo)
	if err := settingsManager.Seed(ctx, cfg.AdminIDs); err != nil {
		log.Printf("Warning: Failed to seed admins from environment: %v", err)
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	var b *bot.Bot
	var botUser *tgmodels.User
	const maxAttempts = 5
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			delay := time.Duration(i*3) * time.Second
			logger.Warn().Dur("delay", delay).Msg("retrying telegram connection")
			select {
			case <-ctx.Done():
				log.Fatal("Interrupted during startup")
			case <-time.After(delay):
			}
		}
		logger.Info().Int("attempt", i+1).Int("max", maxAttempts).Msg("connecting to telegram api")
		b, err = bot.New(cfg.BotToken, bot.WithHTTPClient(15*time.Second, httpClient))
		if err != nil {
			logger.Error().Err(err).Msg("create bot")
			continue
		}
		getMeCtx, getMeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		botUser, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			break
		}
		logger.Error().Err(err).Msg("get bot info")
	}
	if err != nil {
		log.Fatalf("Failed to connect to Telegram API after %d attempts", maxAttempts)
	}

	metrics.Register()
	tg := transport.NewTelegram(b)

	authMiddleware := services.NewAdminAuthMiddleware(adminConfigRepo, logger)
	participantManager := services.NewParticipantManager(participantRepo, logger)
	scoringManager := services.NewScoringManager(submissionRepo, participantRepo, tg, logger)
	broadcastManager := services.NewBroadcastManager(participantManager, tg, cfg.SendDelay, logger)
	ratingManager := services.NewRatingManager(submissionRepo, participantRepo, ratingRepo, tg, logger)

	rules := intake.NewRules(cfg.ContestStart, cfg.ContestEnd, cfg.Location)
	machine := intake.NewMachine(checkpointRepo, submissionRepo, tg, authMiddleware, rules, intake.NewTracker(), logger)
	machine.SetSendDelay(cfg.SendDelay)

	var answerer assistant.Answerer = assistant.Unavailable{}
	if cfg.OpenAIAPIKey != "" {
		gpt, err := assistant.NewOpenAI(assistant.Config{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			ContestStart: rules.Start,
			ContestEnd:   rules.End,
			RulesLink:    cfg.RulesLink,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to configure assistant: %v", err)
		}
		answerer = gpt
	} else {
		logger.Warn().Msg("OPENAI_API_KEY is not set, questions get a fixed apology")
	}

	var ledger sweeper.Ledger
	if cfg.RedisURL != "" {
		redisLedger, err := sweeper.NewRedisLedgerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisLedger.Close()
		ledger = redisLedger
	}

	sw := sweeper.New(checkpointRepo, tg, ledger, sweeper.Config{
		Interval:    cfg.SweepInterval,
		NudgeAfter:  cfg.NudgeAfter,
		NudgeBefore: cfg.NudgeBefore,
		ExpireAfter: cfg.ExpireAfter,
		QuietStart:  cfg.QuietHoursStart,
		QuietEnd:    cfg.QuietHoursEnd,
		Location:    cfg.Location,
		SendDelay:   cfg.SendDelay,
	}, logger)
	go sw.Run(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	contestHandler := handlers.NewContestHandler(
		tg,
		machine,
		authMiddleware,
		adminStateRepo,
		participantManager,
		scoringManager,
		broadcastManager,
		ratingManager,
		settingsManager,
		answerer,
		handlers.ContestInfo{
			Start:     rules.Start,
			End:       rules.End,
			RulesLink: cfg.RulesLink,
		},
		logger,
	)

	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return true
	}, func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		if update.Message != nil {
			if contestHandler.HandleCommand(ctx, update.Message) {
				return
			}
			contestHandler.HandleMessage(ctx, update.Message)
		}
		if update.CallbackQuery != nil {
			contestHandler.HandleCallback(ctx, update.CallbackQuery)
		}
	}, logMiddleware(logger))

	logger.Info().Str("backend", cfg.StoreBackend).Msg("bot started")
	if botUser != nil {
		logger.Info().Str("username", botUser.Username).Msgf("https://t.me/%s", botUser.Username)
	}

	b.Start(ctx)
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}

func logMiddleware(logger zerolog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
			if update.Message != nil && update.Message.From != nil {
				logger.Debug().Int64("from", update.Message.From.ID).Str("text", update.Message.Text).Msg("message")
			}
			if update.CallbackQuery != nil {
				logger.Debug().Int64("from", update.CallbackQuery.From.ID).Str("data", update.CallbackQuery.Data).Msg("callback")
			}
			next(ctx, b, update)
		}
	}
}
