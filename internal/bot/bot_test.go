package bot

import (
	"io"
	"testing"

	"joke-bot/internal/config"
	"joke-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

func TestMain(m *testing.M) {
	logger.Init("error", io.Discard)
	m.Run()
}

func TestNewBot(t *testing.T) {
	cfg := config.BotConfig{
		Token:     "test-token",
		ParseMode: "Markdown",
	}

	_, err := New(cfg, Repositories{}, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestNewBotNoToken(t *testing.T) {
	cfg := config.BotConfig{
		Token:     "",
		ParseMode: "Markdown",
	}

	_, err := New(cfg, Repositories{}, nil)
	if err == nil {
		t.Error("Expected error when token is empty")
	}
}

type stubContext struct {
	telebot.Context
	chat *telebot.Chat
	sent []string
}

func (c *stubContext) Chat() *telebot.Chat { return c.chat }

func (c *stubContext) Send(what interface{}, opts ...interface{}) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

// A /joke arriving before the delivery engine is wired in must get a
// graceful reply, not a nil-interface panic.
func TestHandleJokeWithoutDeliverer(t *testing.T) {
	b := &Bot{flows: newFlowManager()}
	c := &stubContext{chat: &telebot.Chat{ID: 5}}

	if err := b.handleJoke(c); err != nil {
		t.Fatalf("handleJoke() error = %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected one fallback reply, got %d", len(c.sent))
	}
}
