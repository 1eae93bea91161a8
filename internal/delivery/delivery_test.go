package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"joke-bot/internal/config"
	"joke-bot/internal/database"
	"joke-bot/internal/models"
	"joke-bot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error", io.Discard)
	os.Exit(m.Run())
}

type fakeStore struct {
	chats    map[int64]*models.Chat
	settings map[int64]*models.Setting
	jokes    []*models.Joke

	recorded []recordedDelivery
	cleared  []int64
	disabled []int64
}

type recordedDelivery struct {
	chatID    int64
	messageID int
	sentAt    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:    make(map[int64]*models.Chat),
		settings: make(map[int64]*models.Setting),
	}
}

func (s *fakeStore) addChat(chat models.Chat, setting models.Setting) {
	s.chats[chat.ID] = &chat
	setting.ChatID = chat.ID
	s.settings[chat.ID] = &setting
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*models.Chat, error) {
	chat, ok := s.chats[id]
	if !ok {
		return nil, database.ErrChatNotFound
	}
	c := *chat
	return &c, nil
}

func (s *fakeStore) DeliveryCandidates(ctx context.Context) ([]models.DeliveryCandidate, error) {
	var candidates []models.DeliveryCandidate
	for id, setting := range s.settings {
		if !setting.SendingJokes {
			continue
		}
		candidates = append(candidates, models.DeliveryCandidate{
			ChatID:     id,
			Interval:   setting.Interval,
			LastSentAt: s.chats[id].LastSentAt,
		})
	}
	return candidates, nil
}

func (s *fakeStore) RecordDelivery(ctx context.Context, chatID int64, messageID int, sentAt int64) error {
	s.recorded = append(s.recorded, recordedDelivery{chatID, messageID, sentAt})
	s.chats[chatID].LastMessageID = messageID
	s.chats[chatID].LastSentAt = sentAt
	return nil
}

func (s *fakeStore) ClearLastMessage(ctx context.Context, chatID int64) error {
	s.cleared = append(s.cleared, chatID)
	s.chats[chatID].LastMessageID = 0
	return nil
}

func (s *fakeStore) GetOrDefault(ctx context.Context, chatID int64) (*models.Setting, error) {
	setting, ok := s.settings[chatID]
	if !ok {
		def := models.DefaultSetting(chatID)
		s.settings[chatID] = &def
		return &def, nil
	}
	c := *setting
	return &c, nil
}

func (s *fakeStore) SetSendingJokes(ctx context.Context, chatID int64, enabled bool) error {
	s.settings[chatID].SendingJokes = enabled
	if !enabled {
		s.disabled = append(s.disabled, chatID)
	}
	return nil
}

func (s *fakeStore) Random(ctx context.Context, lang string, tagIDs []int64, status models.JokeStatus) (*models.Joke, error) {
	wanted := make(map[int64]bool, len(tagIDs))
	for _, id := range tagIDs {
		wanted[id] = true
	}

	for _, joke := range s.jokes {
		if joke.LanguageCode != lang || joke.Status != status {
			continue
		}
		if len(wanted) == 0 {
			return joke, nil
		}
		for _, tag := range joke.Tags {
			if wanted[tag.ID] {
				return joke, nil
			}
		}
	}
	return nil, database.ErrNoJokesFound
}

type sentJoke struct {
	chatID    int64
	jokeID    int64
	messageID int
}

type fakeMessenger struct {
	sent      []sentJoke
	notices   map[int64][]string
	deleted   []int
	nextID    int
	sendErr   map[int64]error
	deleteErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		notices: make(map[int64][]string),
		sendErr: make(map[int64]error),
		nextID:  100,
	}
}

func (m *fakeMessenger) SendJoke(ctx context.Context, chatID int64, joke *models.Joke) (int, error) {
	if err := m.sendErr[chatID]; err != nil {
		return 0, err
	}
	m.nextID++
	m.sent = append(m.sent, sentJoke{chatID: chatID, jokeID: joke.ID, messageID: m.nextID})
	return m.nextID, nil
}

func (m *fakeMessenger) SendNotice(ctx context.Context, chatID int64, text string) error {
	m.notices[chatID] = append(m.notices[chatID], text)
	return nil
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, messageID)
	return nil
}

func fixedClock(unix int64) Option {
	return WithClock(func() time.Time {
		return time.Unix(unix, 0)
	})
}

func newEngine(store *fakeStore, m *fakeMessenger, atUnix int64) *Engine {
	cfg := config.SchedulerConfig{
		Enabled:    true,
		Interval:   time.Minute,
		FirstDelay: time.Second,
	}
	return New(cfg, store, store, store, m, fixedClock(atUnix))
}

func publishedJoke(id int64, lang string, tags ...models.Tag) *models.Joke {
	return &models.Joke{
		ID:           id,
		Content:      "Why did the chicken cross the road? To get to the other side.",
		LanguageCode: lang,
		Status:       models.StatusPublished,
		Tags:         tags,
	}
}

func TestEligibleBoundaryInclusive(t *testing.T) {
	tests := []struct {
		name     string
		lastSent int64
		interval int64
		now      int64
		want     bool
	}{
		{"one second early", 1000, 600, 1599, false},
		{"exactly at boundary", 1000, 600, 1600, true},
		{"past boundary", 1000, 600, 1700, true},
		{"never delivered", 0, 600, 700, true},
		{"fresh chat inside interval", 700, 600, 1200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible(tt.lastSent, tt.interval, tt.now); got != tt.want {
				t.Errorf("Eligible(%d, %d, %d) = %v, want %v", tt.lastSent, tt.interval, tt.now, got, tt.want)
			}
		})
	}
}

func TestTickSkipsDisabledChats(t *testing.T) {
	store := newFakeStore()
	store.addChat(models.Chat{ID: 1}, models.Setting{Language: "en", Interval: 600, SendingJokes: false})
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()

	newEngine(store, m, 5000).Tick(context.Background())

	if len(m.sent) != 0 {
		t.Errorf("Expected zero sends to disabled chat, got %d", len(m.sent))
	}
}

func TestTickRespectsInterval(t *testing.T) {
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1, LastSentAt: 1000},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true},
	)
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()

	newEngine(store, m, 1599).Tick(context.Background())
	if len(m.sent) != 0 {
		t.Fatalf("Tick at T+I-1 must not send, got %d sends", len(m.sent))
	}

	newEngine(store, m, 1600).Tick(context.Background())
	if len(m.sent) != 1 {
		t.Fatalf("Tick at T+I must send, got %d sends", len(m.sent))
	}
}

func TestTickDeliversAndRecords(t *testing.T) {
	puns := models.Tag{ID: 3, Name: "puns"}
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1, LastSentAt: 0},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true, Tags: []models.Tag{puns}},
	)
	store.jokes = []*models.Joke{publishedJoke(42, "en", puns)}
	m := newFakeMessenger()

	newEngine(store, m, 700).Tick(context.Background())

	if len(m.sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(m.sent))
	}
	if m.sent[0].jokeID != 42 {
		t.Errorf("Sent joke ID = %d, want 42", m.sent[0].jokeID)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("Expected 1 recorded delivery, got %d", len(store.recorded))
	}
	rec := store.recorded[0]
	if rec.chatID != 1 || rec.sentAt != 700 {
		t.Errorf("Recorded (chat %d, sentAt %d), want (1, 700)", rec.chatID, rec.sentAt)
	}
	if rec.messageID != m.sent[0].messageID {
		t.Errorf("Recorded message ID %d does not match sent message ID %d", rec.messageID, m.sent[0].messageID)
	}
}

func TestNoMatchingJokeDisablesDelivery(t *testing.T) {
	dark := models.Tag{ID: 7, Name: "dark"}
	puns := models.Tag{ID: 3, Name: "puns"}
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true, Tags: []models.Tag{dark}},
	)
	store.jokes = []*models.Joke{publishedJoke(10, "en", puns)}
	m := newFakeMessenger()

	newEngine(store, m, 700).Tick(context.Background())

	if len(m.sent) != 0 {
		t.Errorf("Expected no joke sends, got %d", len(m.sent))
	}
	if len(m.notices[1]) != 1 {
		t.Fatalf("Expected 1 notice, got %d", len(m.notices[1]))
	}
	if len(store.disabled) != 1 || store.disabled[0] != 1 {
		t.Fatalf("Expected chat 1 delivery disabled, got %v", store.disabled)
	}

	// Delivery is now off: a later tick must not notify again.
	newEngine(store, m, 1400).Tick(context.Background())
	if len(m.notices[1]) != 1 {
		t.Errorf("Repeated tick re-notified: got %d notices", len(m.notices[1]))
	}
}

func TestSendFailureDoesNotAbortTick(t *testing.T) {
	store := newFakeStore()
	store.addChat(models.Chat{ID: 1}, models.Setting{Language: "en", Interval: 600, SendingJokes: true})
	store.addChat(models.Chat{ID: 2}, models.Setting{Language: "en", Interval: 600, SendingJokes: true})
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()
	m.sendErr[1] = fmt.Errorf("telegram: forbidden")

	newEngine(store, m, 700).Tick(context.Background())

	if len(m.sent) != 1 || m.sent[0].chatID != 2 {
		t.Fatalf("Expected chat 2 still served after chat 1 failed, got %v", m.sent)
	}
	// Failed chat keeps its old bookkeeping, so the next eligible tick retries.
	if store.chats[1].LastSentAt != 0 {
		t.Errorf("Failed send must not update last_sent_at, got %d", store.chats[1].LastSentAt)
	}
}

func TestSendAndRecordDeletesPreviousMessage(t *testing.T) {
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1, LastMessageID: 42},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true, DeleteLastJoke: true},
	)
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()

	newEngine(store, m, 700).Tick(context.Background())

	if len(m.deleted) != 1 || m.deleted[0] != 42 {
		t.Errorf("Expected previous message 42 deleted, got %v", m.deleted)
	}
	if len(m.sent) != 1 {
		t.Errorf("Expected joke sent after deletion, got %d sends", len(m.sent))
	}
}

func TestDeleteFailureClearsStaleIDAndStillSends(t *testing.T) {
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1, LastMessageID: 42},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true, DeleteLastJoke: true},
	)
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()
	m.deleteErr = errors.New("message to delete not found")

	newEngine(store, m, 700).Tick(context.Background())

	if len(store.cleared) != 1 || store.cleared[0] != 1 {
		t.Errorf("Expected stale message id cleared for chat 1, got %v", store.cleared)
	}
	if len(m.sent) != 1 {
		t.Errorf("Delete failure must not block the send, got %d sends", len(m.sent))
	}
}

func TestNoDeletionWhenFlagOff(t *testing.T) {
	store := newFakeStore()
	store.addChat(
		models.Chat{ID: 1, LastMessageID: 42},
		models.Setting{Language: "en", Interval: 600, SendingJokes: true, DeleteLastJoke: false},
	)
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()

	newEngine(store, m, 700).Tick(context.Background())

	if len(m.deleted) != 0 {
		t.Errorf("Expected no deletions with flag off, got %v", m.deleted)
	}
}

func TestDeliverOnDemand(t *testing.T) {
	store := newFakeStore()
	store.addChat(models.Chat{ID: 1}, models.Setting{Language: "en", Interval: 600, SendingJokes: false})
	store.jokes = []*models.Joke{publishedJoke(10, "en")}
	m := newFakeMessenger()

	// /joke works regardless of the delivery toggle.
	if err := newEngine(store, m, 700).Deliver(context.Background(), 1); err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("Expected 1 on-demand send, got %d", len(m.sent))
	}
}
