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

	"joke-bot/internal/bot"
	"joke-bot/internal/config"
	"joke-bot/internal/database"
	"joke-bot/internal/delivery"
	"joke-bot/internal/models"
	"joke-bot/internal/queue"
	"joke-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrEmptyBotToken) {
			fmt.Fprintln(os.Stderr, "Error: TELEGRAM_BOT_TOKEN environment variable is required")
		} else if errors.Is(err, config.ErrEmptyDBPassword) {
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, nil)
	logger.Info("Starting joke-bot",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to connect to database",
				logger.Err(err),
			)
		}
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database")

	q, err := queue.New(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", logger.Err(err))
		os.Exit(1)
	}
	defer q.Close()
	logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))

	repos := bot.Repositories{
		Chats:     database.NewChatRepository(db),
		Users:     database.NewUserRepository(db),
		Settings:  database.NewSettingRepository(db),
		Jokes:     database.NewJokeRepository(db),
		Tags:      database.NewTagRepository(db),
		Languages: database.NewLanguageRepository(db),
		Reactions: database.NewReactionRepository(db),
	}

	go func() {
		logger.Info("Starting submission consumer...")
		if err := q.ConsumeSubmissions(ctx, func(sub *queue.JokeSubmission) error {
			joke := &models.Joke{
				Content:      sub.Content,
				LanguageCode: sub.Language,
				AuthorID:     sub.AuthorID,
				Status:       models.StatusPublished,
			}
			if err := repos.Jokes.Create(ctx, joke); err != nil {
				logger.Error("Failed to save submitted joke", logger.Err(err))
				return err
			}

			tagIDs := make([]int64, 0, len(sub.Tags))
			for _, name := range sub.Tags {
				tag, err := repos.Tags.GetOrCreateByName(ctx, name, sub.AuthorID)
				if err != nil {
					logger.Error("Failed to resolve tag",
						logger.Err(err),
						logger.String("tag", name),
					)
					continue
				}
				tagIDs = append(tagIDs, tag.ID)
			}
			if len(tagIDs) > 0 {
				if err := repos.Jokes.SetTags(ctx, joke.ID, tagIDs); err != nil {
					logger.Error("Failed to tag submitted joke",
						logger.Err(err),
						logger.Int64("joke_id", joke.ID),
					)
				}
			}

			logger.Debug("Submitted joke saved", logger.Int64("joke_id", joke.ID))
			return nil
		}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Submission consumer error", logger.Err(err))
		}
	}()

	telegramBot, err := bot.New(cfg.Bot, repos, q)
	if err != nil {
		logger.Error("Failed to create bot", logger.Err(err))
		os.Exit(1)
	}

	// Wire the engine in before polling starts, so no handler can ever
	// observe a nil deliverer.
	engine := delivery.New(cfg.Scheduler, repos.Chats, repos.Settings, repos.Jokes, telegramBot)
	telegramBot.SetDeliverer(engine)

	tbot, err := telegramBot.Start()
	if err != nil {
		logger.Error("Failed to start bot", logger.Err(err))
		os.Exit(1)
	}
	logger.Info("Telegram bot started")

	go func() {
		logger.Info("Starting delivery scheduler...")
		if err := engine.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Delivery scheduler error", logger.Err(err))
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc(cfg.Health.Endpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthMux,
	}

	go func() {
		logger.Info("Health server starting",
			logger.Int("port", cfg.Health.Port),
		)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	tbot.Stop()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", logger.Err(err))
	}

	logger.Info("Bot stopped gracefully")
}
