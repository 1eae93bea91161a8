package database

import "testing"

func TestResolveReaction(t *testing.T) {
	laugh := int64(1)
	love := int64(2)

	tests := []struct {
		name     string
		existing *int64
		selected int64
		want     reactionAction
	}{
		{"first reaction inserts", nil, laugh, reactionInsert},
		{"same reaction clears", &laugh, laugh, reactionClear},
		{"different reaction replaces", &laugh, love, reactionReplace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveReaction(tt.existing, tt.selected); got != tt.want {
				t.Errorf("resolveReaction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveReactionToggleSequence(t *testing.T) {
	// React R, then R again: the second resolves to clear, leaving nothing.
	r := int64(1)
	if resolveReaction(nil, r) != reactionInsert {
		t.Fatal("First R must insert")
	}
	if resolveReaction(&r, r) != reactionClear {
		t.Fatal("Second R must clear")
	}

	// React R, then R': exactly one row remains, holding R'.
	r2 := int64(2)
	if resolveReaction(&r, r2) != reactionReplace {
		t.Fatal("R followed by R' must replace, not insert a second row")
	}
}
