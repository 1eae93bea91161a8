package database

import (
	"errors"
	"testing"

	"joke-bot/internal/models"
)

func TestConnectionError(t *testing.T) {
	baseErr := errors.New("connection refused")
	err := &ConnectionError{
		Host: "localhost",
		Port: 5432,
		Err:  baseErr,
	}

	if err.Error() == "" {
		t.Error("Expected error message")
	}

	if !errors.Is(err, baseErr) {
		t.Error("Expected underlying error to be unwrapped")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNoJokesFound,
		ErrJokeNotFound,
		ErrChatNotFound,
		ErrSettingNotFound,
		ErrTagNotFound,
		ErrLanguageNotFound,
		ErrInvalidInterval,
	}

	for _, err := range sentinels {
		if err.Error() == "" {
			t.Errorf("Sentinel %v has empty message", err)
		}
	}

	if errors.Is(ErrNoJokesFound, ErrJokeNotFound) {
		t.Error("no-match and missing-joke errors must stay distinct")
	}
}

func TestDefaultSetting(t *testing.T) {
	s := models.DefaultSetting(123)

	if s.ChatID != 123 {
		t.Errorf("ChatID = %v, want 123", s.ChatID)
	}
	if s.Language != "en" {
		t.Errorf("Language = %v, want en", s.Language)
	}
	if s.Interval != 600 {
		t.Errorf("Interval = %v, want 600", s.Interval)
	}
	if s.SendingJokes {
		t.Error("Delivery must be off by default")
	}
	if !s.DeleteLastJoke {
		t.Error("DeleteLastJoke must be on by default")
	}
	if len(s.Tags) != 0 {
		t.Errorf("Default tags = %v, want none", s.Tags)
	}
}

func TestSettingTagIDs(t *testing.T) {
	s := models.Setting{
		Tags: []models.Tag{
			{ID: 3, Name: "puns"},
			{ID: 7, Name: "dark"},
		},
	}

	ids := s.TagIDs()
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Errorf("TagIDs() = %v, want [3 7]", ids)
	}
}

func TestJokeStatusConstants(t *testing.T) {
	if models.StatusDraft != "draft" {
		t.Errorf("StatusDraft = %v, want draft", models.StatusDraft)
	}
	if models.StatusPending != "pending" {
		t.Errorf("StatusPending = %v, want pending", models.StatusPending)
	}
	if models.StatusPublished != "published" {
		t.Errorf("StatusPublished = %v, want published", models.StatusPublished)
	}
}
