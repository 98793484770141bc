package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	te "github.com/muesli/termenv"

	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/training"
)

// conversationSummary builds the markdown shown when a scene is finished.
func conversationSummary(scene content.Scene, sess training.ConversationSession, level content.Level, stats training.HistoryStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", scene.Title)
	if scene.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", scene.Description)
	}

	answered := 0
	for _, r := range sess.UserResponses {
		if r != "" {
			answered++
		}
	}
	fmt.Fprintf(&b, "You answered **%d of %d** turns in %s.\n\n",
		answered, len(scene.Turns), sess.EndedAt.Sub(sess.StartedAt).Round(time.Second))

	for i, turn := range scene.Turns {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, turn.Text)
		if i < len(sess.UserResponses) && sess.UserResponses[i] != "" {
			fmt.Fprintf(&b, "- You: *%s*\n", sess.UserResponses[i])
		} else {
			b.WriteString("- You: (no answer)\n")
		}
		for _, r := range turn.ResponsesAt(level) {
			fmt.Fprintf(&b, "- Example: %s\n", r.Text)
		}
		b.WriteString("\n")
	}

	writeHistoryStats(&b, stats)
	return b.String()
}

// phraseSummary builds the markdown shown when a phrase group is finished.
func phraseSummary(group content.PhraseGroup, st training.PhraseState, stats training.HistoryStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", group.Title)
	fmt.Fprintf(&b, "All **%d** phrases marked correct in %d attempts.\n\n", st.Total, st.Attempts)

	b.WriteString("| Japanese | English |\n|---|---|\n")
	for _, p := range group.Phrases {
		fmt.Fprintf(&b, "| %s | %s |\n", p.Japanese, p.English)
	}
	b.WriteString("\n")

	writeHistoryStats(&b, stats)
	return b.String()
}

func writeHistoryStats(b *strings.Builder, stats training.HistoryStats) {
	if stats.Sessions == 0 {
		return
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(b, "Sessions: %d, completed: %d, average completion: %.0f%%, practice time: %s\n",
		stats.Sessions, stats.Completed, stats.AverageCompletion*100, stats.TotalTime.Round(time.Second))
}

// glamourStyle resolves the auto style against the terminal background.
func glamourStyle(style string) string {
	if style == "" || style == styles.AutoStyle {
		if te.HasDarkBackground() {
			return styles.DarkStyle
		}
		return styles.LightStyle
	}
	return style
}

func glamourRender(cfg Config, width int, markdown string) (string, error) {
	if !cfg.GlamourEnabled {
		return markdown, nil
	}

	w := width
	if cfg.GlamourMaxWidth > 0 {
		w = min(int(cfg.GlamourMaxWidth), width) //nolint:gosec
	}
	w = max(0, w)

	style := glamourStyle(cfg.GlamourStyle)
	var opt glamour.TermRendererOption
	if _, ok := styles.DefaultStyles[style]; ok {
		opt = glamour.WithStandardStyle(style)
	} else {
		opt = glamour.WithStylePath(style)
	}

	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(w))
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return out, nil
}
