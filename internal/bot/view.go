package bot

import (
	"fmt"
	"strings"

	"joke-bot/internal/models"

	"gopkg.in/telebot.v4"
)

const breakLine = "______________________________"

// reactionButtonsPerRow caps keyboard rows at Telegram's practical
// width for short labels.
const reactionButtonsPerRow = 8

// FormatJoke renders a joke the way it is posted to chats: the content
// between break lines, then attribution, tags and language.
func FormatJoke(joke *models.Joke) string {
	var sb strings.Builder

	sb.WriteString(breakLine)
	sb.WriteString("\n")
	sb.WriteString(joke.Content)
	sb.WriteString("\n")
	sb.WriteString(breakLine)
	sb.WriteString("\n\n")

	if joke.Author != nil && joke.Author.Username != "" {
		sb.WriteString(fmt.Sprintf("Added by: @%s\n", joke.Author.Username))
	} else {
		sb.WriteString("Added by: Unknown\n")
	}

	if len(joke.Tags) > 0 {
		names := make([]string, 0, len(joke.Tags))
		for _, tag := range joke.Tags {
			names = append(names, "#"+tag.Name)
		}
		sb.WriteString("Tags: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	} else {
		sb.WriteString("No tags\n")
	}

	if joke.Language != nil {
		sb.WriteString(fmt.Sprintf("Language: %s\n", joke.Language.Name))
	}

	sb.WriteString(breakLine)

	return sb.String()
}

// ReactionKeyboard builds one button per catalog reaction with its
// current count. Callback data is react_<jokeID>_<reactionID>.
func ReactionKeyboard(joke *models.Joke) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}

	var rows []telebot.Row
	var row []telebot.Btn

	for _, rc := range joke.Reactions {
		btn := markup.Data(
			fmt.Sprintf("%s (%d)", rc.Emoji, rc.Count),
			fmt.Sprintf("react_%d_%d", joke.ID, rc.ID),
		)
		row = append(row, btn)
		if len(row) == reactionButtonsPerRow {
			rows = append(rows, markup.Row(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, markup.Row(row...))
	}

	markup.Inline(rows...)
	return markup
}

// ManageKeyboard is attached to /myjokes listings so the author can
// edit, publish or delete their own jokes.
func ManageKeyboard(joke *models.Joke) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}

	edit := markup.Data("Edit", fmt.Sprintf("edit_joke_%d", joke.ID))
	del := markup.Data("Delete", fmt.Sprintf("delete_joke_%d", joke.ID))

	var toggle telebot.Btn
	if joke.Status == models.StatusPublished {
		toggle = markup.Data("Unpublish", fmt.Sprintf("set_status_joke_%d_%s", joke.ID, models.StatusPending))
	} else {
		toggle = markup.Data("Publish", fmt.Sprintf("set_status_joke_%d_%s", joke.ID, models.StatusPublished))
	}

	markup.Inline(
		markup.Row(edit, del),
		markup.Row(toggle),
	)
	return markup
}
