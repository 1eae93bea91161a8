package bot

import (
	"errors"
	"strings"
	"testing"

	"joke-bot/internal/models"
)

func TestNextStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state flowState
		event flowEvent
		want  flowState
		ok    bool
	}{
		{"start from idle", flowIdle, eventStart, flowMenu, true},
		{"menu to content", flowMenu, eventEditContent, flowContent, true},
		{"menu to tags", flowMenu, eventEditTags, flowTags, true},
		{"menu to language", flowMenu, eventEditLanguage, flowLanguage, true},
		{"content input returns to menu", flowContent, eventContentInput, flowMenu, true},
		{"tag toggle stays in tags", flowTags, eventToggleTag, flowTags, true},
		{"language pick returns to menu", flowLanguage, eventSetLanguage, flowMenu, true},
		{"back from tags", flowTags, eventBack, flowMenu, true},
		{"save ends the flow", flowMenu, eventSave, flowIdle, true},
		{"cancel ends the flow", flowMenu, eventCancel, flowIdle, true},
		{"cancel from content", flowContent, eventCancel, flowIdle, true},
		{"reset stays in menu", flowMenu, eventReset, flowMenu, true},
		{"no save from tags", flowTags, eventSave, 0, false},
		{"no content input from menu", flowMenu, eventContentInput, 0, false},
		{"no start from menu", flowMenu, eventStart, 0, false},
		{"idle rejects everything else", flowIdle, eventSave, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextState(tt.state, tt.event)
			if ok != tt.ok {
				t.Fatalf("nextState(%v, %v) ok = %v, want %v", tt.state, tt.event, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("nextState(%v, %v) = %v, want %v", tt.state, tt.event, got, tt.want)
			}
		})
	}
}

func TestFlowManagerLifecycle(t *testing.T) {
	m := newFlowManager()
	userID := int64(7)

	if m.get(userID) != nil {
		t.Fatal("expected no session before start")
	}

	m.start(userID, draft{language: models.DefaultLanguage})
	session := m.get(userID)
	if session == nil {
		t.Fatal("expected session after start")
	}
	if session.state != flowMenu {
		t.Errorf("new session state = %v, want flowMenu", session.state)
	}

	state, ok := m.fire(userID, eventEditContent)
	if !ok || state != flowContent {
		t.Errorf("fire(eventEditContent) = %v, %v", state, ok)
	}

	// Invalid event leaves the state unchanged.
	state, ok = m.fire(userID, eventSave)
	if ok {
		t.Error("expected eventSave to be rejected in flowContent")
	}
	if state != flowContent {
		t.Errorf("state after rejected event = %v, want flowContent", state)
	}

	m.fire(userID, eventContentInput)
	state, ok = m.fire(userID, eventSave)
	if !ok || state != flowIdle {
		t.Errorf("fire(eventSave) = %v, %v", state, ok)
	}
	if m.get(userID) != nil {
		t.Error("session should be removed after reaching flowIdle")
	}
}

func TestFlowManagerFireWithoutSession(t *testing.T) {
	m := newFlowManager()
	if _, ok := m.fire(99, eventEditContent); ok {
		t.Error("fire without a session should report not ok")
	}
}

func TestDraftToggleTag(t *testing.T) {
	d := &draft{}

	d.toggleTag(3)
	d.toggleTag(5)
	if !d.hasTag(3) || !d.hasTag(5) {
		t.Fatalf("tags after adds = %v", d.tagIDs)
	}

	d.toggleTag(3)
	if d.hasTag(3) {
		t.Errorf("tag 3 should be removed, got %v", d.tagIDs)
	}
	if !d.hasTag(5) {
		t.Errorf("tag 5 should survive, got %v", d.tagIDs)
	}
}

func TestValidateDraft(t *testing.T) {
	long := strings.Repeat("a", models.MinJokeLength)

	tests := []struct {
		name    string
		draft   draft
		wantErr bool
		target  error
	}{
		{"valid", draft{content: long, language: "en"}, false, nil},
		{"too short", draft{content: "short one", language: "en"}, true, ErrContentTooShort},
		{"whitespace is not content", draft{content: "   " + strings.Repeat(" ", 40), language: "en"}, true, ErrContentTooShort},
		{"missing language", draft{content: long}, true, nil},
		{"exactly at the minimum", draft{content: long, language: "de"}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDraft(&tt.draft)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateDraft() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("validateDraft() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestValidateDraftCountsRunes(t *testing.T) {
	// 30 multibyte runes are enough even though the byte count of a
	// single rune repeated would mislead a len() check.
	content := strings.Repeat("ж", models.MinJokeLength)
	d := draft{content: content, language: "ru"}
	if err := validateDraft(&d); err != nil {
		t.Errorf("validateDraft() = %v, want nil for %d runes", err, models.MinJokeLength)
	}
}
