package chat

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSummarizeReactions(t *testing.T) {
	tests := []struct {
		name      string
		reactions []Reaction
		viewerID  int64
		want      []ReactionSummary
	}{
		{
			name:      "Empty",
			reactions: nil,
			viewerID:  1,
			want:      []ReactionSummary{},
		},
		{
			name: "GroupedWithViewer",
			reactions: []Reaction{
				{ID: 1, MessageID: 9, UserID: 1, Emoji: "👍"},
				{ID: 2, MessageID: 9, UserID: 2, Emoji: "👍"},
				{ID: 3, MessageID: 9, UserID: 3, Emoji: "❤️"},
			},
			viewerID: 2,
			want: []ReactionSummary{
				{Emoji: "👍", Count: 2, IsMe: true},
				{Emoji: "❤️", Count: 1, IsMe: false},
			},
		},
		{
			name: "ViewerAbsent",
			reactions: []Reaction{
				{ID: 1, MessageID: 9, UserID: 1, Emoji: "😂"},
			},
			viewerID: 5,
			want: []ReactionSummary{
				{Emoji: "😂", Count: 1, IsMe: false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SummarizeReactions(tt.reactions, tt.viewerID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Summaries do not match (-want +got):\n%s", diff)
			}
		})
	}
}

func TestService_ToggleReaction(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*Service, *memdb, int64) {
		svc, db, _ := newTestService(t)
		db.addUser(1)
		db.addUser(2)
		conv := db.addConversation(1, 2)
		msg, err := svc.Submit(ctx, conv.ID, 1, "hi")
		if err != nil {
			t.Fatal(err)
		}
		return svc, db, msg.ID
	}

	t.Run("ToggleOff", func(t *testing.T) {
		svc, db, msgID := setup(t)
		if err := svc.ToggleReaction(ctx, msgID, 2, "👍"); err != nil {
			t.Fatal(err)
		}
		if err := svc.ToggleReaction(ctx, msgID, 2, "👍"); err != nil {
			t.Fatal(err)
		}
		if got := len(db.reactionsFor(msgID)); got != 0 {
			t.Errorf("Got %d reactions, want 0", got)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		svc, db, msgID := setup(t)
		if err := svc.ToggleReaction(ctx, msgID, 2, "👍"); err != nil {
			t.Fatal(err)
		}
		if err := svc.ToggleReaction(ctx, msgID, 2, "❤️"); err != nil {
			t.Fatal(err)
		}
		rows := db.reactionsFor(msgID)
		if len(rows) != 1 {
			t.Fatalf("Got %d reactions, want 1", len(rows))
		}
		if rows[0].Emoji != "❤️" {
			t.Errorf("Got emoji %q, want ❤️", rows[0].Emoji)
		}

		msg, err := svc.DB.GetMessage(ctx, msgID)
		if err != nil {
			t.Fatal(err)
		}
		want := []ReactionSummary{{Emoji: "❤️", Count: 1, IsMe: true}}
		if diff := cmp.Diff(want, SummarizeReactions(msg.Reactions, 2)); diff != "" {
			t.Errorf("Summaries do not match (-want +got):\n%s", diff)
		}
	})

	t.Run("OneRowPerUser", func(t *testing.T) {
		svc, db, msgID := setup(t)
		seq := []string{"👍", "❤️", "❤️", "😂", "👍", "👍"}
		for _, emoji := range seq {
			if err := svc.ToggleReaction(ctx, msgID, 2, emoji); err != nil {
				t.Fatal(err)
			}
		}
		if got := len(db.reactionsFor(msgID)); got > 1 {
			t.Errorf("Got %d reactions for one user, want at most 1", got)
		}
	})

	t.Run("MessageMissing", func(t *testing.T) {
		svc, _, _ := setup(t)
		err := svc.ToggleReaction(ctx, 999, 2, "👍")
		if err == nil {
			t.Fatal("Expected error for missing message")
		}
	})
}
