package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"joke-bot/internal/models"
	"joke-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

var ErrContentTooShort = errors.New("joke content is too short")

// flowState enumerates where a user is in the add-joke conversation.
type flowState int

const (
	flowIdle flowState = iota
	flowMenu
	flowContent
	flowTags
	flowLanguage
)

type flowEvent int

const (
	eventStart flowEvent = iota
	eventEditContent
	eventContentInput
	eventEditTags
	eventToggleTag
	eventEditLanguage
	eventSetLanguage
	eventBack
	eventReset
	eventSave
	eventCancel
)

// flowTransitions is the full transition table. A missing entry means
// the event is not valid in that state.
var flowTransitions = map[flowState]map[flowEvent]flowState{
	flowIdle: {
		eventStart: flowMenu,
	},
	flowMenu: {
		eventEditContent:  flowContent,
		eventEditTags:     flowTags,
		eventEditLanguage: flowLanguage,
		eventReset:        flowMenu,
		eventSave:         flowIdle,
		eventCancel:       flowIdle,
	},
	flowContent: {
		eventContentInput: flowMenu,
		eventBack:         flowMenu,
		eventCancel:       flowIdle,
	},
	flowTags: {
		eventToggleTag: flowTags,
		eventBack:      flowMenu,
		eventCancel:    flowIdle,
	},
	flowLanguage: {
		eventSetLanguage: flowMenu,
		eventBack:        flowMenu,
		eventCancel:      flowIdle,
	},
}

func nextState(s flowState, e flowEvent) (flowState, bool) {
	next, ok := flowTransitions[s][e]
	return next, ok
}

// draft holds the joke being composed. jokeID is zero for new jokes
// and set when editing an existing one.
type draft struct {
	jokeID   int64
	content  string
	language string
	tagIDs   []int64
}

func (d *draft) hasTag(id int64) bool {
	for _, t := range d.tagIDs {
		if t == id {
			return true
		}
	}
	return false
}

func (d *draft) toggleTag(id int64) {
	for i, t := range d.tagIDs {
		if t == id {
			d.tagIDs = append(d.tagIDs[:i], d.tagIDs[i+1:]...)
			return
		}
	}
	d.tagIDs = append(d.tagIDs, id)
}

func validateDraft(d *draft) error {
	if utf8.RuneCountInString(strings.TrimSpace(d.content)) < models.MinJokeLength {
		return fmt.Errorf("%w: at least %d characters required", ErrContentTooShort, models.MinJokeLength)
	}
	if d.language == "" {
		return errors.New("a language must be selected")
	}
	return nil
}

type flowSession struct {
	state flowState
	draft draft
}

// flowManager tracks one add-joke session per user. Telegram handlers
// run concurrently, hence the lock.
type flowManager struct {
	mu       sync.Mutex
	sessions map[int64]*flowSession
}

func newFlowManager() *flowManager {
	return &flowManager{sessions: make(map[int64]*flowSession)}
}

func (m *flowManager) get(userID int64) *flowSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (m *flowManager) start(userID int64, d draft) *flowSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := &flowSession{state: flowMenu, draft: d}
	m.sessions[userID] = session
	return session
}

// fire applies an event to the user's session and reports whether the
// transition was valid. Sessions landing in flowIdle are removed.
func (m *flowManager) fire(userID int64, e flowEvent) (flowState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[userID]
	if !ok {
		return flowIdle, false
	}

	next, ok := nextState(session.state, e)
	if !ok {
		return session.state, false
	}

	session.state = next
	if next == flowIdle {
		delete(m.sessions, userID)
	}
	return next, true
}

func (m *flowManager) end(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (b *Bot) handleAddJoke(c telebot.Context) error {
	if !b.isPrivateChat(c) {
		return c.Send("This command can only be used in private chats.")
	}

	ctx := context.Background()
	if _, err := b.ensureChat(ctx, c); err != nil {
		logger.Error("Failed to initialize chat", logger.Err(err))
		return c.Send("Oops! Something went wrong. Please try again later.")
	}

	session := b.flows.start(c.Sender().ID, draft{language: models.DefaultLanguage})
	return c.Send(draftMessage(&session.draft), flowMenuKeyboard())
}

// startEditFlow opens the add-joke menu preloaded with an existing joke.
func (b *Bot) startEditFlow(c telebot.Context, jokeID int64) error {
	ctx := context.Background()

	joke, err := b.repos.Jokes.Get(ctx, jokeID)
	if err != nil {
		logger.Error("Failed to load joke for editing", logger.Err(err), logger.Int64("joke_id", jokeID))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load the joke."})
	}
	if joke.AuthorID != c.Sender().ID {
		return c.Respond(&telebot.CallbackResponse{Text: "You can only edit your own jokes."})
	}
	if err := b.repos.Jokes.LoadTags(ctx, joke); err != nil {
		logger.Error("Failed to load joke tags", logger.Err(err), logger.Int64("joke_id", jokeID))
	}

	d := draft{
		jokeID:   joke.ID,
		content:  joke.Content,
		language: joke.LanguageCode,
	}
	for _, tag := range joke.Tags {
		d.tagIDs = append(d.tagIDs, tag.ID)
	}

	session := b.flows.start(c.Sender().ID, d)
	return c.Edit(draftMessage(&session.draft), flowMenuKeyboard())
}

// handleFlowText consumes a plain text message as draft content when
// the user is in the content-input state. Returns false when no flow is
// waiting for text.
func (b *Bot) handleFlowText(c telebot.Context) (bool, error) {
	session := b.flows.get(c.Sender().ID)
	if session == nil || session.state != flowContent {
		return false, nil
	}

	session.draft.content = c.Text()
	b.flows.fire(c.Sender().ID, eventContentInput)

	return true, c.Send(draftMessage(&session.draft), flowMenuKeyboard())
}

func (b *Bot) handleFlowCallback(c telebot.Context, data string) error {
	userID := c.Sender().ID
	session := b.flows.get(userID)
	if session == nil {
		return c.Respond(&telebot.CallbackResponse{Text: "No joke in progress. Start one with /addjoke."})
	}

	switch {
	case data == "flow_edit_content":
		if _, ok := b.flows.fire(userID, eventEditContent); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		return c.Edit("Send me the joke text as a message.")

	case data == "flow_edit_tags":
		if _, ok := b.flows.fire(userID, eventEditTags); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		return b.renderFlowTagPicker(c, session)

	case strings.HasPrefix(data, "flow_tag_"):
		tagID, err := strconv.ParseInt(strings.TrimPrefix(data, "flow_tag_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if _, ok := b.flows.fire(userID, eventToggleTag); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		session.draft.toggleTag(tagID)
		return b.renderFlowTagPicker(c, session)

	case data == "flow_edit_language":
		if _, ok := b.flows.fire(userID, eventEditLanguage); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		return b.renderFlowLanguagePicker(c)

	case strings.HasPrefix(data, "flow_lang_"):
		code := strings.TrimPrefix(data, "flow_lang_")
		if _, ok := b.flows.fire(userID, eventSetLanguage); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		session.draft.language = code
		return c.Edit(draftMessage(&session.draft), flowMenuKeyboard())

	case data == "flow_back":
		if _, ok := b.flows.fire(userID, eventBack); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		return c.Edit(draftMessage(&session.draft), flowMenuKeyboard())

	case data == "flow_reset":
		if _, ok := b.flows.fire(userID, eventReset); !ok {
			return c.Respond(&telebot.CallbackResponse{Text: "That action is not available right now."})
		}
		session.draft = draft{jokeID: session.draft.jokeID, language: models.DefaultLanguage}
		return c.Edit(draftMessage(&session.draft), flowMenuKeyboard())

	case data == "flow_save":
		return b.saveDraft(c, session)

	case data == "flow_cancel":
		b.flows.end(userID)
		return c.Edit("Joke discarded. Start over any time with /addjoke.")
	}

	return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
}

func (b *Bot) saveDraft(c telebot.Context, session *flowSession) error {
	userID := c.Sender().ID

	if err := validateDraft(&session.draft); err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: err.Error()})
	}

	ctx := context.Background()
	d := session.draft

	var jokeID int64
	if d.jokeID == 0 {
		joke := &models.Joke{
			Content:      d.content,
			LanguageCode: d.language,
			AuthorID:     userID,
			Status:       models.StatusPending,
		}
		if err := b.repos.Jokes.Create(ctx, joke); err != nil {
			logger.Error("Failed to save joke", logger.Err(err), logger.Int64("user_id", userID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to save the joke. Please try again."})
		}
		jokeID = joke.ID
	} else {
		joke, err := b.repos.Jokes.Get(ctx, d.jokeID)
		if err != nil {
			logger.Error("Failed to load joke", logger.Err(err), logger.Int64("joke_id", d.jokeID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to save the joke. Please try again."})
		}
		joke.Content = d.content
		joke.LanguageCode = d.language
		if err := b.repos.Jokes.Update(ctx, joke); err != nil {
			logger.Error("Failed to update joke", logger.Err(err), logger.Int64("joke_id", d.jokeID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to save the joke. Please try again."})
		}
		jokeID = d.jokeID
	}

	if err := b.repos.Jokes.SetTags(ctx, jokeID, d.tagIDs); err != nil {
		logger.Error("Failed to save joke tags", logger.Err(err), logger.Int64("joke_id", jokeID))
	}

	b.flows.fire(userID, eventSave)

	if d.jokeID == 0 {
		return c.Edit("Thanks! Your joke was submitted and is pending review. Track it with /myjokes.")
	}
	return c.Edit("Your joke was updated.")
}

func draftMessage(d *draft) string {
	var sb strings.Builder

	sb.WriteString("Composing a joke\n\n")

	if d.content == "" {
		sb.WriteString("Content: (not set yet)\n")
	} else {
		sb.WriteString("Content:\n")
		sb.WriteString(d.content)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nLanguage: %s\n", d.language))
	sb.WriteString(fmt.Sprintf("Tags selected: %d\n", len(d.tagIDs)))
	sb.WriteString(fmt.Sprintf("\nJokes must be at least %d characters long.", models.MinJokeLength))

	return sb.String()
}

func flowMenuKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}

	content := markup.Data("Edit content", "flow_edit_content")
	tags := markup.Data("Edit tags", "flow_edit_tags")
	language := markup.Data("Edit language", "flow_edit_language")
	reset := markup.Data("Reset", "flow_reset")
	save := markup.Data("Save", "flow_save")
	cancel := markup.Data("Cancel", "flow_cancel")

	markup.Inline(
		markup.Row(content),
		markup.Row(tags, language),
		markup.Row(save),
		markup.Row(reset, cancel),
	)
	return markup
}

func (b *Bot) renderFlowTagPicker(c telebot.Context, session *flowSession) error {
	tags, err := b.repos.Tags.All(context.Background())
	if err != nil {
		logger.Error("Failed to list tags", logger.Err(err))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load tags."})
	}

	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(tags)+1)
	for _, tag := range tags {
		label := tag.Name
		if session.draft.hasTag(tag.ID) {
			label = "✅ " + tag.Name
		}
		rows = append(rows, markup.Row(markup.Data(label, fmt.Sprintf("flow_tag_%d", tag.ID))))
	}
	rows = append(rows, markup.Row(markup.Data("Back", "flow_back")))
	markup.Inline(rows...)

	return c.Edit("Pick tags for your joke:", markup)
}

func (b *Bot) renderFlowLanguagePicker(c telebot.Context) error {
	languages, err := b.repos.Languages.All(context.Background())
	if err != nil {
		logger.Error("Failed to list languages", logger.Err(err))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load languages."})
	}

	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(languages)+1)
	for _, lang := range languages {
		rows = append(rows, markup.Row(markup.Data(lang.Name, "flow_lang_"+lang.Code)))
	}
	rows = append(rows, markup.Row(markup.Data("Back", "flow_back")))
	markup.Inline(rows...)

	return c.Edit("Pick the language of your joke:", markup)
}
