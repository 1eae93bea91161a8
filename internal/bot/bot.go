package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"joke-bot/internal/config"
	"joke-bot/internal/database"
	"joke-bot/internal/models"
	"joke-bot/internal/queue"
	"joke-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

var ErrRateLimited = errors.New("telegram rate limited")

// Deliverer runs the joke-selection and send-and-record path for one
// chat. Satisfied by the delivery engine.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64) error
}

type Repositories struct {
	Chats     *database.ChatRepository
	Users     *database.UserRepository
	Settings  *database.SettingRepository
	Jokes     *database.JokeRepository
	Tags      *database.TagRepository
	Languages *database.LanguageRepository
	Reactions *database.ReactionRepository
}

type Bot struct {
	cfg      config.BotConfig
	settings telebot.Settings
	tbot     *telebot.Bot
	q        *queue.NATS
	repos    Repositories

	deliverer Deliverer
	flows     *flowManager
}

func New(cfg config.BotConfig, repos Repositories, q *queue.NATS) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	return &Bot{
		cfg:   cfg,
		repos: repos,
		q:     q,
		flows: newFlowManager(),
		settings: telebot.Settings{
			Token:  cfg.Token,
			Poller: &telebot.LongPoller{Timeout: 10},
		},
	}, nil
}

// SetDeliverer wires the delivery engine in after construction; the
// engine itself needs the bot as its Messenger.
func (b *Bot) SetDeliverer(d Deliverer) {
	b.deliverer = d
}

func (b *Bot) Start() (*telebot.Bot, error) {
	tbot, err := telebot.NewBot(b.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.tbot = tbot
	b.setupHandlers(tbot)

	go b.startOutboundConsumer(context.Background())

	go tbot.Start()

	return tbot, nil
}

func (b *Bot) setupHandlers(bot *telebot.Bot) {
	bot.Handle(telebot.OnText, func(c telebot.Context) error {
		logger.Info("Incoming text message",
			logger.Int64("user_id", c.Sender().ID),
			logger.String("username", c.Sender().Username),
		)
		return b.handleText(c)
	})

	bot.Handle(telebot.OnCallback, func(c telebot.Context) error {
		logger.Info("Incoming callback",
			logger.Int64("user_id", c.Sender().ID),
			logger.String("callback_data", c.Callback().Data),
		)
		return b.handleCallback(c)
	})

	bot.Handle("/start", b.handleStart)
	bot.Handle("/stop", b.handleStop)
	bot.Handle("/joke", b.handleJoke)
	bot.Handle("/settings", b.handleSettings)
	bot.Handle("/addjoke", b.handleAddJoke)
	bot.Handle("/myjokes", b.handleMyJokes)
	bot.Handle("/help", b.handleHelp)
}

func (b *Bot) startOutboundConsumer(ctx context.Context) {
	if b.q == nil {
		return
	}

	err := b.q.ConsumeOutbound(ctx, func(msg *queue.OutboundMessage) error {
		return b.sendMessageWithRetry(msg.ChatID, msg.Text)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Outbound consumer error", logger.Err(err))
	}
}

func (b *Bot) sendMessageWithRetry(chatID int64, text string) error {
	maxRetries := 3
	retryDelay := time.Second

	for i := 0; i < maxRetries; i++ {
		_, err := b.tbot.Send(&telebot.Chat{ID: chatID}, text)

		if err != nil {
			errStr := err.Error()
			if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "rate") {
				logger.Warn("Rate limited, retrying...",
					logger.Int("retry", i+1),
					logger.Int("max_retries", maxRetries),
				)
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	return ErrRateLimited
}

func (b *Bot) queueOrSend(chatID int64, text string) error {
	if b.q != nil {
		msg := &queue.OutboundMessage{
			ChatID: chatID,
			Text:   text,
		}
		if err := b.q.PublishOutbound(context.Background(), msg); err != nil {
			logger.Error("Failed to queue outbound message", logger.Err(err))
		}
		return nil
	}

	_, err := b.tbot.Send(&telebot.Chat{ID: chatID}, text)
	return err
}

// SendJoke implements delivery.Messenger. Joke deliveries bypass the
// outbound queue: the caller records the returned message id.
func (b *Bot) SendJoke(ctx context.Context, chatID int64, joke *models.Joke) (int, error) {
	msg, err := b.tbot.Send(&telebot.Chat{ID: chatID}, FormatJoke(joke), ReactionKeyboard(joke))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (b *Bot) SendNotice(ctx context.Context, chatID int64, text string) error {
	return b.queueOrSend(chatID, text)
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return b.tbot.Delete(&telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
}

// ensureChat upserts the sender and the chat, so both rows exist before
// any settings or delivery work. Mirrors lazy creation on first
// interaction.
func (b *Bot) ensureChat(ctx context.Context, c telebot.Context) (*models.Chat, error) {
	user := &models.User{
		ID:       c.Sender().ID,
		Username: c.Sender().Username,
	}
	if err := b.repos.Users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	chat := &models.Chat{
		ID:       c.Chat().ID,
		Type:     string(c.Chat().Type),
		Username: c.Chat().Username,
		UserID:   user.ID,
	}
	if err := b.repos.Chats.Upsert(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to save chat: %w", err)
	}
	return chat, nil
}

func (b *Bot) isPrivateChat(c telebot.Context) bool {
	return c.Chat().Type == telebot.ChatPrivate
}

// isAdminOrOwner gates group-level commands. Private chats are always
// authorized.
func (b *Bot) isAdminOrOwner(c telebot.Context) bool {
	if b.isPrivateChat(c) {
		return true
	}

	member, err := b.tbot.ChatMemberOf(c.Chat(), c.Sender())
	if err != nil {
		logger.Error("Failed to check chat member role",
			logger.Err(err),
			logger.Int64("chat_id", c.Chat().ID),
			logger.Int64("user_id", c.Sender().ID),
		)
		return false
	}
	return member.Role == telebot.Administrator || member.Role == telebot.Creator
}

func (b *Bot) handleStart(c telebot.Context) error {
	if !b.isAdminOrOwner(c) {
		return c.Send("Only admins or the owner can start joke delivery in this chat.")
	}

	ctx := context.Background()
	chat, err := b.ensureChat(ctx, c)
	if err != nil {
		logger.Error("Failed to initialize chat", logger.Err(err))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	setting, err := b.repos.Settings.GetOrDefault(ctx, chat.ID)
	if err != nil {
		logger.Error("Failed to load settings", logger.Err(err), logger.Int64("chat_id", chat.ID))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	if err := b.repos.Settings.SetSendingJokes(ctx, chat.ID, true); err != nil {
		logger.Error("Failed to enable delivery", logger.Err(err), logger.Int64("chat_id", chat.ID))
		return c.Send("Oops! Something went wrong while starting joke delivery.")
	}

	if b.deliverer != nil {
		if err := b.deliverer.Deliver(ctx, chat.ID); err != nil {
			logger.Error("Failed to deliver first joke", logger.Err(err), logger.Int64("chat_id", chat.ID))
		}
	}

	minutes := setting.Interval / 60
	return c.Send(fmt.Sprintf(
		"You will receive a joke every %d minutes. Stop any time with /stop.\nFor more information, see /help.",
		minutes,
	))
}

func (b *Bot) handleStop(c telebot.Context) error {
	if !b.isAdminOrOwner(c) {
		return c.Send("Only admins or the owner can stop joke delivery in this chat.")
	}

	ctx := context.Background()
	chat, err := b.ensureChat(ctx, c)
	if err != nil {
		logger.Error("Failed to initialize chat", logger.Err(err))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	if _, err := b.repos.Settings.GetOrDefault(ctx, chat.ID); err != nil {
		logger.Error("Failed to load settings", logger.Err(err), logger.Int64("chat_id", chat.ID))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	if err := b.repos.Settings.SetSendingJokes(ctx, chat.ID, false); err != nil {
		logger.Error("Failed to disable delivery", logger.Err(err), logger.Int64("chat_id", chat.ID))
		return c.Send("Oops! Something went wrong while stopping joke delivery.")
	}

	return c.Send("Joke delivery stopped. Start it again any time with /start.")
}

func (b *Bot) handleJoke(c telebot.Context) error {
	if b.deliverer == nil {
		logger.Error("Deliverer not wired", logger.Int64("chat_id", c.Chat().ID))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	ctx := context.Background()
	chat, err := b.ensureChat(ctx, c)
	if err != nil {
		logger.Error("Failed to initialize chat", logger.Err(err))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	if err := b.deliverer.Deliver(ctx, chat.ID); err != nil {
		logger.Error("Failed to handle /joke", logger.Err(err), logger.Int64("chat_id", chat.ID))
		return c.Send("Sorry, no jokes available right now. Try again later!")
	}
	return nil
}

func (b *Bot) handleMyJokes(c telebot.Context) error {
	if !b.isPrivateChat(c) {
		return c.Send("This command can only be used in private chats.")
	}

	ctx := context.Background()
	if _, err := b.ensureChat(ctx, c); err != nil {
		logger.Error("Failed to initialize chat", logger.Err(err))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	jokes, err := b.repos.Jokes.ByAuthor(ctx, c.Sender().ID)
	if err != nil {
		logger.Error("Failed to list jokes", logger.Err(err), logger.Int64("user_id", c.Sender().ID))
		return c.Send("Failed to load your jokes. Please try again.")
	}

	if len(jokes) == 0 {
		return c.Send("You have no jokes yet. Add one with /addjoke!")
	}

	for i := range jokes {
		joke := &jokes[i]
		if err := b.repos.Jokes.Hydrate(ctx, joke); err != nil {
			logger.Error("Failed to hydrate joke", logger.Err(err), logger.Int64("joke_id", joke.ID))
			continue
		}
		if err := c.Send(FormatJoke(joke), ManageKeyboard(joke)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleHelp(c telebot.Context) error {
	help := "Here's a list of available commands:\n" +
		"- /start - Start periodic joke delivery to this chat\n" +
		"- /stop - Stop periodic joke delivery\n" +
		"- /joke - Get a random joke right now\n" +
		"- /settings - Manage language, schedule and tag preferences\n" +
		"- /addjoke - Submit a new joke (private chats only)\n" +
		"- /myjokes - Manage the jokes you added\n" +
		"- /help - Show this help message"

	return c.Send(help)
}

func (b *Bot) handleText(c telebot.Context) error {
	if handled, err := b.handleFlowText(c); handled {
		return err
	}
	return c.Send("Use /joke to get a joke, or /help to see what I can do!")
}

func (b *Bot) handleCallback(c telebot.Context) error {
	data := strings.TrimPrefix(strings.TrimSpace(c.Callback().Data), "\f")

	switch {
	case strings.HasPrefix(data, "react_"):
		return b.handleReaction(c, data)
	case strings.HasPrefix(data, "flow_"):
		return b.handleFlowCallback(c, data)
	case strings.HasPrefix(data, "edit_joke_"),
		strings.HasPrefix(data, "delete_joke_"),
		strings.HasPrefix(data, "set_status_joke_"):
		return b.handleMyJokesCallback(c, data)
	default:
		return b.handleSettingsCallback(c, data)
	}
}

func (b *Bot) handleReaction(c telebot.Context, data string) error {
	parts := strings.Split(data, "_")
	if len(parts) != 3 {
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
	}

	jokeID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
	}
	reactionID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
	}

	ctx := context.Background()
	user := &models.User{ID: c.Sender().ID, Username: c.Sender().Username}
	if err := b.repos.Users.Upsert(ctx, user); err != nil {
		logger.Error("Failed to save user", logger.Err(err))
	}

	if err := b.repos.Reactions.React(ctx, user.ID, jokeID, reactionID); err != nil {
		logger.Error("Failed to record reaction",
			logger.Err(err),
			logger.Int64("joke_id", jokeID),
			logger.Int64("user_id", user.ID),
		)
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to process your reaction. Please try again."})
	}

	if err := c.Respond(&telebot.CallbackResponse{Text: "Your reaction has been recorded."}); err != nil {
		logger.Warn("Failed to answer callback", logger.Err(err))
	}

	counts, err := b.repos.Reactions.CountsFor(ctx, jokeID)
	if err != nil {
		logger.Error("Failed to reload reaction counts", logger.Err(err), logger.Int64("joke_id", jokeID))
		return nil
	}

	return c.Edit(ReactionKeyboard(&models.Joke{ID: jokeID, Reactions: counts}))
}

func (b *Bot) handleMyJokesCallback(c telebot.Context, data string) error {
	ctx := context.Background()

	switch {
	case strings.HasPrefix(data, "edit_joke_"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "edit_joke_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		return b.startEditFlow(c, id)

	case strings.HasPrefix(data, "delete_joke_"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "delete_joke_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if err := b.repos.Jokes.Delete(ctx, id); err != nil {
			logger.Error("Failed to delete joke", logger.Err(err), logger.Int64("joke_id", id))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to delete the joke."})
		}
		return c.Edit("Joke deleted.")

	case strings.HasPrefix(data, "set_status_joke_"):
		rest := strings.TrimPrefix(data, "set_status_joke_")
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) != 2 {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		status := models.JokeStatus(parts[1])
		if status != models.StatusPending && status != models.StatusPublished {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if err := b.repos.Jokes.SetStatus(ctx, id, status); err != nil {
			logger.Error("Failed to change joke status", logger.Err(err), logger.Int64("joke_id", id))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update the joke."})
		}

		joke, err := b.repos.Jokes.Get(ctx, id)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update the joke."})
		}
		if err := b.repos.Jokes.Hydrate(ctx, joke); err != nil {
			logger.Error("Failed to hydrate joke", logger.Err(err), logger.Int64("joke_id", id))
		}
		return c.Edit(FormatJoke(joke), ManageKeyboard(joke))
	}

	return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
}
