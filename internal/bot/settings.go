package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"joke-bot/internal/models"
	"joke-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

// schedulePresets are the intervals offered in the settings menu, in
// seconds.
var schedulePresets = []struct {
	Label   string
	Seconds int64
}{
	{"10 minutes", 600},
	{"30 minutes", 1800},
	{"1 hour", 3600},
	{"3 hours", 10800},
	{"6 hours", 21600},
	{"24 hours", 86400},
}

func (b *Bot) handleSettings(c telebot.Context) error {
	if !b.isAdminOrOwner(c) {
		return c.Send("Only admins or the owner can change settings in this chat.")
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

	return c.Send(settingsMessage(setting), settingsKeyboard())
}

func (b *Bot) renderSettings(c telebot.Context, chatID int64) error {
	setting, err := b.repos.Settings.GetOrDefault(context.Background(), chatID)
	if err != nil {
		logger.Error("Failed to load settings", logger.Err(err), logger.Int64("chat_id", chatID))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load settings."})
	}
	return c.Edit(settingsMessage(setting), settingsKeyboard())
}

func settingsMessage(setting *models.Setting) string {
	var sb strings.Builder

	sb.WriteString("Chat settings\n\n")
	sb.WriteString(fmt.Sprintf("Language: %s\n", setting.Language))
	sb.WriteString(fmt.Sprintf("Schedule: every %s\n", intervalLabel(setting.Interval)))
	sb.WriteString(fmt.Sprintf("Delivery: %s\n", onOff(setting.SendingJokes)))
	sb.WriteString(fmt.Sprintf("Delete previous joke: %s\n", onOff(setting.DeleteLastJoke)))

	if len(setting.Tags) > 0 {
		names := make([]string, 0, len(setting.Tags))
		for _, tag := range setting.Tags {
			names = append(names, "#"+tag.Name)
		}
		sb.WriteString("Preferred tags: ")
		sb.WriteString(strings.Join(names, ", "))
	} else {
		sb.WriteString("Preferred tags: any")
	}

	return sb.String()
}

func intervalLabel(seconds int64) string {
	for _, p := range schedulePresets {
		if p.Seconds == seconds {
			return p.Label
		}
	}
	return fmt.Sprintf("%d minutes", seconds/60)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func settingsKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}

	language := markup.Data("Language", "edit_preferred_language")
	schedule := markup.Data("Schedule", "edit_schedule")
	deletion := markup.Data("Delete previous joke", "toggle_delete_last_joke")
	tags := markup.Data("Preferred tags", "manage_preferred_tags")
	reset := markup.Data("Reset to defaults", "reset_settings")
	closeBtn := markup.Data("Close", "close_settings")

	markup.Inline(
		markup.Row(language, schedule),
		markup.Row(deletion),
		markup.Row(tags),
		markup.Row(reset, closeBtn),
	)
	return markup
}

func (b *Bot) handleSettingsCallback(c telebot.Context, data string) error {
	if !b.isAdminOrOwner(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Only admins or the owner can change settings."})
	}

	ctx := context.Background()
	chatID := c.Chat().ID

	switch {
	case data == "edit_preferred_language":
		return b.renderLanguagePicker(c)

	case strings.HasPrefix(data, "set_language_"):
		code := strings.TrimPrefix(data, "set_language_")
		if err := b.repos.Settings.SetLanguage(ctx, chatID, code); err != nil {
			logger.Error("Failed to set language", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update the language."})
		}
		return b.renderSettings(c, chatID)

	case data == "edit_schedule":
		return b.renderSchedulePicker(c)

	case strings.HasPrefix(data, "set_schedule_"):
		seconds, err := strconv.ParseInt(strings.TrimPrefix(data, "set_schedule_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if err := b.repos.Settings.SetInterval(ctx, chatID, seconds); err != nil {
			logger.Error("Failed to set interval", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update the schedule."})
		}
		return b.renderSettings(c, chatID)

	case data == "toggle_delete_last_joke":
		setting, err := b.repos.Settings.GetOrDefault(ctx, chatID)
		if err != nil {
			logger.Error("Failed to load settings", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to load settings."})
		}
		if err := b.repos.Settings.SetDeleteLastJoke(ctx, chatID, !setting.DeleteLastJoke); err != nil {
			logger.Error("Failed to toggle deletion", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update the setting."})
		}
		return b.renderSettings(c, chatID)

	case data == "manage_preferred_tags":
		return b.renderTagPicker(c, chatID)

	case strings.HasPrefix(data, "add_tag_"):
		tagID, err := strconv.ParseInt(strings.TrimPrefix(data, "add_tag_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if err := b.repos.Settings.AddPreferredTag(ctx, chatID, tagID); err != nil {
			logger.Error("Failed to add preferred tag", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update tags."})
		}
		return b.renderTagPicker(c, chatID)

	case strings.HasPrefix(data, "remove_tag_"):
		tagID, err := strconv.ParseInt(strings.TrimPrefix(data, "remove_tag_"), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
		}
		if err := b.repos.Settings.RemovePreferredTag(ctx, chatID, tagID); err != nil {
			logger.Error("Failed to remove preferred tag", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to update tags."})
		}
		return b.renderTagPicker(c, chatID)

	case data == "reset_settings":
		if err := b.repos.Settings.Reset(ctx, chatID); err != nil {
			logger.Error("Failed to reset settings", logger.Err(err), logger.Int64("chat_id", chatID))
			return c.Respond(&telebot.CallbackResponse{Text: "Failed to reset settings."})
		}
		return b.renderSettings(c, chatID)

	case data == "return_to_settings":
		return b.renderSettings(c, chatID)

	case data == "close_settings":
		return c.Edit("Settings menu closed. Open it again any time with /settings.")
	}

	return c.Respond(&telebot.CallbackResponse{Text: "Unknown action. Please try again."})
}

func (b *Bot) renderLanguagePicker(c telebot.Context) error {
	languages, err := b.repos.Languages.All(context.Background())
	if err != nil {
		logger.Error("Failed to list languages", logger.Err(err))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load languages."})
	}

	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(languages)+1)
	for _, lang := range languages {
		btn := markup.Data(lang.Name, "set_language_"+lang.Code)
		rows = append(rows, markup.Row(btn))
	}
	rows = append(rows, markup.Row(markup.Data("Back", "return_to_settings")))
	markup.Inline(rows...)

	return c.Edit("Pick the language for jokes in this chat:", markup)
}

func (b *Bot) renderSchedulePicker(c telebot.Context) error {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(schedulePresets)/2+1)
	for i := 0; i < len(schedulePresets); i += 2 {
		first := schedulePresets[i]
		row := []telebot.Btn{
			markup.Data(first.Label, fmt.Sprintf("set_schedule_%d", first.Seconds)),
		}
		if i+1 < len(schedulePresets) {
			second := schedulePresets[i+1]
			row = append(row, markup.Data(second.Label, fmt.Sprintf("set_schedule_%d", second.Seconds)))
		}
		rows = append(rows, markup.Row(row...))
	}
	rows = append(rows, markup.Row(markup.Data("Back", "return_to_settings")))
	markup.Inline(rows...)

	return c.Edit("How often should I send a joke?", markup)
}

func (b *Bot) renderTagPicker(c telebot.Context, chatID int64) error {
	ctx := context.Background()

	tags, err := b.repos.Tags.All(ctx)
	if err != nil {
		logger.Error("Failed to list tags", logger.Err(err))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load tags."})
	}

	preferred, err := b.repos.Settings.PreferredTags(ctx, chatID)
	if err != nil {
		logger.Error("Failed to load preferred tags", logger.Err(err), logger.Int64("chat_id", chatID))
		return c.Respond(&telebot.CallbackResponse{Text: "Failed to load tags."})
	}

	selected := make(map[int64]bool, len(preferred))
	for _, tag := range preferred {
		selected[tag.ID] = true
	}

	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(tags)+1)
	for _, tag := range tags {
		label := tag.Name
		action := fmt.Sprintf("add_tag_%d", tag.ID)
		if selected[tag.ID] {
			label = "✅ " + tag.Name
			action = fmt.Sprintf("remove_tag_%d", tag.ID)
		}
		rows = append(rows, markup.Row(markup.Data(label, action)))
	}
	rows = append(rows, markup.Row(markup.Data("Back", "return_to_settings")))
	markup.Inline(rows...)

	return c.Edit("Pick preferred tags. With none selected, jokes from all tags are delivered:", markup)
}
