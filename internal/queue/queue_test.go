package queue

import (
	"encoding/json"
	"testing"
)

func TestJokeSubmissionJSON(t *testing.T) {
	sub := JokeSubmission{
		Content:  "I told my wife she should embrace her mistakes. She hugged me.",
		Language: "en",
		Tags:     []string{"puns", "dad"},
		AuthorID: 42,
	}

	data, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("Failed to marshal JokeSubmission: %v", err)
	}

	var parsed JokeSubmission
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal JokeSubmission: %v", err)
	}

	if parsed.Content != sub.Content {
		t.Errorf("Content = %v, want %v", parsed.Content, sub.Content)
	}
	if parsed.Language != sub.Language {
		t.Errorf("Language = %v, want %v", parsed.Language, sub.Language)
	}
	if len(parsed.Tags) != 2 || parsed.Tags[0] != "puns" {
		t.Errorf("Tags = %v, want %v", parsed.Tags, sub.Tags)
	}
	if parsed.AuthorID != sub.AuthorID {
		t.Errorf("AuthorID = %v, want %v", parsed.AuthorID, sub.AuthorID)
	}
}

func TestOutboundMessageJSON(t *testing.T) {
	msg := OutboundMessage{
		ChatID: 123456789,
		Text:   "No jokes available for your preferred tags and language.",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal OutboundMessage: %v", err)
	}

	var parsed OutboundMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal OutboundMessage: %v", err)
	}

	if parsed.ChatID != msg.ChatID {
		t.Errorf("ChatID = %v, want %v", parsed.ChatID, msg.ChatID)
	}
	if parsed.Text != msg.Text {
		t.Errorf("Text = %v, want %v", parsed.Text, msg.Text)
	}
}
