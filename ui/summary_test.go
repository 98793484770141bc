package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/training"
)

func TestConversationSummary(t *testing.T) {
	scene := testScene()
	start := time.Unix(0, 0)
	sess := training.ConversationSession{
		SceneID:       scene.ID,
		UserResponses: []string{"coffee please"},
		StartedAt:     start,
		EndedAt:       start.Add(90*time.Second + 400*time.Millisecond),
		Completed:     true,
	}

	md := conversationSummary(scene, sess, content.LevelNative, training.HistoryStats{})
	for _, want := range []string{
		"# At the cafe",
		"You answered **1 of 1** turns in 1m30s.",
		"- You: *coffee please*",
		"- Example: I'll grab a flat white.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("summary missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "A coffee, please.") {
		t.Error("summary should only list examples at the chosen level")
	}
	if strings.Contains(md, "Sessions:") {
		t.Error("empty history should not print stats")
	}
}

func TestConversationSummaryUnanswered(t *testing.T) {
	md := conversationSummary(testScene(), training.ConversationSession{}, content.LevelBeginner,
		training.HistoryStats{Sessions: 2, Completed: 1, AverageCompletion: 0.75, TotalTime: 3 * time.Minute})
	if !strings.Contains(md, "(no answer)") {
		t.Error("missing answer placeholder")
	}
	if !strings.Contains(md, "Sessions: 2, completed: 1, average completion: 75%, practice time: 3m0s") {
		t.Errorf("unexpected stats line:\n%s", md)
	}
}

func TestPhraseSummary(t *testing.T) {
	group := content.PhraseGroup{Title: "Greetings", Phrases: []content.Phrase{
		{ID: "p1", Japanese: "こんにちは", English: "Hello."},
	}}
	md := phraseSummary(group, training.PhraseState{Total: 1, Attempts: 2}, training.HistoryStats{})
	for _, want := range []string{"# Greetings", "All **1** phrases marked correct in 2 attempts.", "| こんにちは | Hello. |"} {
		if !strings.Contains(md, want) {
			t.Errorf("summary missing %q:\n%s", want, md)
		}
	}
}

func TestGlamourRender(t *testing.T) {
	md := "# Title\n\nbody"

	out, err := glamourRender(Config{}, 80, md)
	if err != nil {
		t.Fatalf("glamourRender() error = %v", err)
	}
	if out != md {
		t.Errorf("glamourRender() with glamour disabled = %q, want raw markdown", out)
	}

	out, err = glamourRender(Config{GlamourEnabled: true, GlamourStyle: "notty", GlamourMaxWidth: 40}, 80, md)
	if err != nil {
		t.Fatalf("glamourRender() error = %v", err)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "body") {
		t.Errorf("glamourRender() = %q", out)
	}
}

func TestGlamourStyle(t *testing.T) {
	if got := glamourStyle("dracula"); got != "dracula" {
		t.Errorf("glamourStyle() = %q, want %q", got, "dracula")
	}
	if got := glamourStyle(""); got != "dark" && got != "light" {
		t.Errorf("glamourStyle(\"\") = %q, want dark or light", got)
	}
}
