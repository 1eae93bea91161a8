// Package delivery implements the scheduled joke push: a periodic tick
// scans every chat with delivery enabled, checks whether its interval
// has elapsed, selects a preference-matched random joke and sends it,
// recording the new message id and timestamp afterwards.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"joke-bot/internal/config"
	"joke-bot/internal/database"
	"joke-bot/internal/models"
	"joke-bot/pkg/logger"
)

const noJokesNotice = "No jokes available for your preferred tags and language. " +
	"Joke delivery is paused. You can add jokes with /addjoke and resume with /start."

type ChatStore interface {
	Get(ctx context.Context, id int64) (*models.Chat, error)
	DeliveryCandidates(ctx context.Context) ([]models.DeliveryCandidate, error)
	RecordDelivery(ctx context.Context, chatID int64, messageID int, sentAt int64) error
	ClearLastMessage(ctx context.Context, chatID int64) error
}

type SettingStore interface {
	GetOrDefault(ctx context.Context, chatID int64) (*models.Setting, error)
	SetSendingJokes(ctx context.Context, chatID int64, enabled bool) error
}

// JokeStore returns database.ErrNoJokesFound when nothing matches.
type JokeStore interface {
	Random(ctx context.Context, lang string, tagIDs []int64, status models.JokeStatus) (*models.Joke, error)
}

type Messenger interface {
	SendJoke(ctx context.Context, chatID int64, joke *models.Joke) (int, error)
	SendNotice(ctx context.Context, chatID int64, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Engine struct {
	cfg       config.SchedulerConfig
	chats     ChatStore
	settings  SettingStore
	jokes     JokeStore
	messenger Messenger
	now       func() time.Time
}

func New(cfg config.SchedulerConfig, chats ChatStore, settings SettingStore, jokes JokeStore, messenger Messenger, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		chats:     chats,
		settings:  settings,
		jokes:     jokes,
		messenger: messenger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start runs the tick loop: first tick after FirstDelay, then one tick
// every Interval. Ticks run on this single goroutine, so two ticks can
// never overlap.
func (e *Engine) Start(ctx context.Context) error {
	if !e.cfg.Enabled {
		return nil
	}

	first := time.NewTimer(e.cfg.FirstDelay)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-first.C:
		e.Tick(ctx)
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick performs one delivery pass. Per-chat failures are logged and do
// not abort the pass for the remaining chats.
func (e *Engine) Tick(ctx context.Context) {
	candidates, err := e.chats.DeliveryCandidates(ctx)
	if err != nil {
		logger.Error("Failed to scan delivery candidates", logger.Err(err))
		return
	}

	now := e.now().Unix()
	for _, c := range candidates {
		if !Eligible(c.LastSentAt, c.Interval, now) {
			continue
		}
		if err := e.Deliver(ctx, c.ChatID); err != nil {
			logger.Error("Failed to deliver joke",
				logger.Err(err),
				logger.Int64("chat_id", c.ChatID),
			)
		}
	}
}

// Eligible reports whether a chat's interval has elapsed since its last
// delivery. The boundary is inclusive: a chat last served at T with
// interval I is due at exactly T+I.
func Eligible(lastSentAt, interval, now int64) bool {
	return lastSentAt+interval <= now
}

// Deliver selects a joke for the chat's preferences and sends it. When
// no joke matches, the chat is notified once and its delivery flag is
// switched off, so later ticks skip it silently.
func (e *Engine) Deliver(ctx context.Context, chatID int64) error {
	chat, err := e.chats.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}

	setting, err := e.settings.GetOrDefault(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load setting for chat %d: %w", chatID, err)
	}

	joke, err := e.jokes.Random(ctx, setting.Language, setting.TagIDs(), models.StatusPublished)
	if errors.Is(err, database.ErrNoJokesFound) {
		if err := e.messenger.SendNotice(ctx, chatID, noJokesNotice); err != nil {
			logger.Warn("Failed to send no-jokes notice",
				logger.Err(err),
				logger.Int64("chat_id", chatID),
			)
		}
		if err := e.settings.SetSendingJokes(ctx, chatID, false); err != nil {
			return fmt.Errorf("failed to disable delivery for chat %d: %w", chatID, err)
		}
		logger.Info("No jokes matched preferences, delivery disabled",
			logger.Int64("chat_id", chatID),
			logger.String("language", setting.Language),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to select joke for chat %d: %w", chatID, err)
	}

	return e.sendAndRecord(ctx, chat, setting, joke)
}

// sendAndRecord delivers the joke and updates the chat's bookkeeping.
// On send failure nothing is recorded, so the chat is retried naturally
// once its interval elapses again.
func (e *Engine) sendAndRecord(ctx context.Context, chat *models.Chat, setting *models.Setting, joke *models.Joke) error {
	if setting.DeleteLastJoke && chat.LastMessageID != 0 {
		if err := e.messenger.DeleteMessage(ctx, chat.ID, chat.LastMessageID); err != nil {
			logger.Warn("Failed to delete previous joke message",
				logger.Err(err),
				logger.Int64("chat_id", chat.ID),
				logger.Int("message_id", chat.LastMessageID),
			)
			if err := e.chats.ClearLastMessage(ctx, chat.ID); err != nil {
				logger.Error("Failed to clear stale message id",
					logger.Err(err),
					logger.Int64("chat_id", chat.ID),
				)
			}
		}
	}

	sendCtx := ctx
	if e.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.cfg.SendTimeout)
		defer cancel()
	}

	messageID, err := e.messenger.SendJoke(sendCtx, chat.ID, joke)
	if err != nil {
		return fmt.Errorf("failed to send joke %d to chat %d: %w", joke.ID, chat.ID, err)
	}

	sentAt := e.now().Unix()
	if err := e.chats.RecordDelivery(ctx, chat.ID, messageID, sentAt); err != nil {
		return fmt.Errorf("failed to record delivery for chat %d: %w", chat.ID, err)
	}

	logger.Debug("Delivered joke",
		logger.Int64("chat_id", chat.ID),
		logger.Int64("joke_id", joke.ID),
		logger.Int("message_id", messageID),
	)
	return nil
}
