// Package ui provides the terminal drill screens: a conversation drill that
// plays each prompt and takes a typed answer under a countdown, and a phrase
// drill with self-marking.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/review"
	"github.com/dgnsrekt/kaiwa/speech/recognizers/typed"
	"github.com/dgnsrekt/kaiwa/training"
	"github.com/dgnsrekt/kaiwa/tts"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
	defaultWidth         = 80
)

// Drill bundles what a drill screen drives. Exactly one of Conversation and
// Phrases is set.
type Drill struct {
	Conversation *training.ConversationFlow
	Phrases      *training.PhraseFlow
	Input        *typed.Recognizer
	// Audio is optional; it feeds the status bar, slow replay and preload.
	Audio   *tts.Controller
	History *training.History
	// Review is optional; without it the add-to-review key does nothing.
	Review review.Store
}

// NewProgram returns a new Tea program.
func NewProgram(ctx context.Context, cfg Config, d Drill) *tea.Program {
	log.Debug("starting drill", "conversation", d.Conversation != nil, "glamour", cfg.GlamourEnabled)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(ctx, cfg, d), opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	flowChangedMsg          struct{}
	playDoneMsg             struct{ err error }
	listenDoneMsg           struct{ err error }
	reviewAddedMsg          struct{ added bool }
	summaryRenderedMsg      struct{ out string }
	statusMessageTimeoutMsg struct{}
	copiedMsg               struct{ text string }
)

type model struct {
	ctx     context.Context
	cfg     Config
	drill   Drill
	changes chan struct{}

	width  int
	height int

	input   textinput.Model
	spinner spinner.Model
	status  *StatusDisplay

	conv   training.ConversationState
	phrase training.PhraseState

	summary       string
	rendering     bool
	statusMessage string
	fatalErr      error
}

func newModel(ctx context.Context, cfg Config, d Drill) model {
	if cfg.Level == "" {
		cfg.Level = content.LevelBeginner
	}

	in := textinput.New()
	in.Placeholder = "type your answer, enter to submit"
	in.CharLimit = 200
	in.Prompt = "› "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		ctx:     ctx,
		cfg:     cfg,
		drill:   d,
		changes: make(chan struct{}, 1),
		width:   defaultWidth,
		input:   in,
		spinner: sp,
		status:  NewStatusDisplay(),
	}

	signal := func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
	switch {
	case d.Conversation != nil:
		d.Conversation.OnChange(func(training.ConversationState) { signal() })
	case d.Phrases != nil:
		d.Phrases.OnChange(func(training.PhraseState) { signal() })
	default:
		m.fatalErr = fmt.Errorf("nothing to drill")
	}
	if d.Audio != nil {
		d.Audio.OnStateChange(func(tts.StateType) { signal() })
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	if m.fatalErr != nil {
		return nil
	}
	cmds := []tea.Cmd{waitForChange(m.changes), m.spinner.Tick}

	if f := m.drill.Conversation; f != nil {
		if m.drill.Audio != nil {
			texts := make([]string, 0, len(f.Scene().Turns))
			for _, t := range f.Scene().Turns {
				texts = append(texts, t.Text)
			}
			cmds = append(cmds, tts.PreloadCmd(m.ctx, m.drill.Audio, texts, tts.SpeedNormal))
		}
		if m.cfg.Autoplay {
			cmds = append(cmds, playCmd(func() error { return f.PlayPrompt(m.ctx) }))
		}
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.listening() {
			return m.updateInput(msg)
		}
		if m.drill.Conversation != nil {
			return m.conversationKey(msg)
		}
		return m.phraseKey(msg)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-6)
		m.summary = ""

	case flowChangedMsg:
		cmds = append(cmds, waitForChange(m.changes))

	case playDoneMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus("playback failed: "+msg.err.Error()))
		}

	case listenDoneMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus(msg.err.Error()))
		}

	case reviewAddedMsg:
		if msg.added {
			cmds = append(cmds, m.showStatus("added to review"))
		} else {
			cmds = append(cmds, m.showStatus("already in review"))
		}

	case tts.PlayFinishedMsg, tts.StateChangedMsg, tts.AudioErrorMsg, tts.PlayStartedMsg:
		m.status.UpdateFromMessage(msg)

	case tts.PreloadedMsg:
		if msg.Err != nil {
			log.Warn("preload failed", "count", msg.Count, "err", msg.Err)
		} else {
			log.Debug("preloaded prompts", "count", msg.Count)
		}

	case summaryRenderedMsg:
		m.summary = msg.out
		m.rendering = false

	case copiedMsg:
		cmds = append(cmds, m.showStatus("copied!"))

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case errMsg:
		cmds = append(cmds, m.showStatus(msg.Error()))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	cmds = append(cmds, m.refresh())
	return m, tea.Batch(cmds...)
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		m.drill.Input.Submit()
		return m, m.refresh()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.drill.Input.SetText(m.input.Value())
	return m, tea.Batch(cmd, m.refresh())
}

func (m model) conversationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.drill.Conversation
	var cmds []tea.Cmd

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case " ", "l":
		cmds = append(cmds, listenCmd(f.StartListening))
	case "p":
		cmds = append(cmds, playCmd(func() error { return f.Replay(m.ctx) }))
	case "s":
		if m.drill.Audio != nil {
			cmds = append(cmds, tts.StopCmd(m.drill.Audio))
		}
	case "r":
		f.RevealResponses()
	case "R":
		cmds = append(cmds, m.addToReview(review.Ref{
			Type:    review.TypeConversation,
			SceneID: f.Scene().ID,
			TurnID:  m.conv.Turn.ID,
		}))
	case "n", "enter":
		if m.conv.Phase == training.FlowComplete {
			return m, tea.Quit
		}
		if err := f.Next(); err == nil && m.cfg.Autoplay && f.State().Phase != training.FlowComplete {
			cmds = append(cmds, playCmd(func() error { return f.PlayPrompt(m.ctx) }))
		}
	case "ctrl+r":
		f.Reset()
		m.summary = ""
		if m.cfg.Autoplay {
			cmds = append(cmds, playCmd(func() error { return f.PlayPrompt(m.ctx) }))
		}
	case "c":
		if rs := m.responses(); len(rs) > 0 {
			cmds = append(cmds, copyCmd(rs[0].Text))
		}
	}

	cmds = append(cmds, m.refresh())
	return m, tea.Batch(cmds...)
}

func (m model) phraseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.drill.Phrases
	var cmds []tea.Cmd

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case " ", "l":
		cmds = append(cmds, listenCmd(f.StartListening))
	case "a":
		f.RevealAnswer()
	case "p":
		cmds = append(cmds, playCmd(func() error { return f.PlayAnswer(m.ctx) }))
	case "P":
		if m.drill.Audio != nil {
			cmds = append(cmds, tts.PlayCmd(m.ctx, m.drill.Audio, m.phrase.Phrase.English, tts.SpeedSlow, false))
		}
	case "y":
		_ = f.MarkCorrect()
	case "x":
		_ = f.MarkIncorrect()
	case "R":
		cmds = append(cmds, m.addToReview(review.Ref{Type: review.TypePhrase, PhraseID: m.phrase.Phrase.ID}))
	case "n", "enter":
		if m.phrase.Phase == training.PhraseComplete {
			return m, tea.Quit
		}
		_ = f.Next()
	case "ctrl+r":
		f.Restart()
		m.summary = ""
	case "c":
		cmds = append(cmds, copyCmd(m.phrase.Phrase.English))
	}

	cmds = append(cmds, m.refresh())
	return m, tea.Batch(cmds...)
}

// refresh pulls the flow state into the model and returns follow-up work.
func (m *model) refresh() tea.Cmd {
	var cmds []tea.Cmd
	listening := false
	complete := false

	switch {
	case m.drill.Conversation != nil:
		m.conv = m.drill.Conversation.State()
		listening = m.conv.Phase == training.FlowListening
		complete = m.conv.Phase == training.FlowComplete
		m.status.SetListening(listening, m.conv.TimeLeft, true)
	case m.drill.Phrases != nil:
		m.phrase = m.drill.Phrases.State()
		listening = m.phrase.Phase == training.PhraseListening
		complete = m.phrase.Phase == training.PhraseComplete
		m.status.SetListening(listening, 0, false)
	}
	if m.drill.Audio != nil {
		m.status.UpdateAudio(m.drill.Audio.State())
	}

	if listening && !m.input.Focused() {
		m.input.Reset()
		cmds = append(cmds, m.input.Focus())
	} else if !listening && m.input.Focused() {
		m.input.Blur()
	}

	if complete && m.summary == "" && !m.rendering {
		m.rendering = true
		cmds = append(cmds, renderSummaryCmd(m.cfg, m.width, m.summaryMarkdown()))
	}
	if !complete {
		m.summary = ""
	}
	return tea.Batch(cmds...)
}

func (m model) listening() bool {
	switch {
	case m.drill.Conversation != nil:
		return m.conv.Phase == training.FlowListening
	case m.drill.Phrases != nil:
		return m.phrase.Phase == training.PhraseListening
	}
	return false
}

// responses returns the example responses at the configured level, or all
// of them when none match.
func (m model) responses() []content.Response {
	rs := m.conv.Turn.ResponsesAt(m.cfg.Level)
	if len(rs) == 0 {
		rs = m.conv.Turn.Responses
	}
	return rs
}

func (m model) summaryMarkdown() string {
	var stats training.HistoryStats
	if m.drill.History != nil {
		stats = m.drill.History.Stats()
	}
	if f := m.drill.Conversation; f != nil {
		return conversationSummary(f.Scene(), f.Session(), m.cfg.Level, stats)
	}
	return phraseSummary(m.drill.Phrases.Group(), m.phrase, stats)
}

func (m model) addToReview(ref review.Ref) tea.Cmd {
	if m.drill.Review == nil {
		return nil
	}
	return addReviewCmd(m.ctx, m.drill.Review, ref)
}

func (m *model) showStatus(s string) tea.Cmd {
	m.statusMessage = s
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	var body, help string
	switch {
	case m.drill.Conversation != nil:
		body, help = m.conversationView()
	default:
		body, help = m.phraseView()
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	if bar := m.statusBar(); bar != "" {
		b.WriteString(bar + "\n")
	}
	b.WriteString(helpStyle.Render(help))
	return "\n" + indent(b.String(), 2)
}

func (m model) conversationView() (string, string) {
	st := m.conv
	scene := m.drill.Conversation.Scene()
	if st.Phase == training.FlowComplete {
		return m.summaryView(), "enter/q quit • ctrl+r again"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", titleStyle.Render(scene.Title), subtleStyle.Render(fmt.Sprintf("%d/%d", st.Index+1, st.Total)))
	if st.Turn.Context != "" {
		b.WriteString(dimStyle.Render(m.wrap(st.Turn.Context)) + "\n\n")
	}
	b.WriteString(promptStyle.Render(m.wrap(st.Turn.Text)) + "\n")
	if m.cfg.ShowTranslation && st.Turn.Translation != "" {
		b.WriteString(dimStyle.Render(m.wrap(st.Turn.Translation)) + "\n")
	}
	b.WriteString("\n")

	help := "space answer • p play • R review • n next • q quit"
	switch st.Phase {
	case training.FlowPlaying:
		b.WriteString(m.spinner.View() + " playing…\n")
		help = "space answer now • s stop • q quit"
	case training.FlowListening:
		b.WriteString(m.countdownView(st.TimeLeft) + "\n")
		if m.cfg.ShowHints && st.Turn.JapaneseExample != "" {
			b.WriteString(dimStyle.Render("hint: "+st.Turn.JapaneseExample) + "\n")
		}
		b.WriteString(m.input.View() + "\n")
		help = "enter submit • ctrl+c quit"
	case training.FlowTimeUp:
		b.WriteString(urgentStyle.Render("Time's up!") + "\n")
		if st.UserResponse != "" {
			b.WriteString(subtleStyle.Render("You said: ") + st.UserResponse + "\n")
		}
		help = "r show examples • space try again • n next • q quit"
	case training.FlowAnswered:
		if st.UserResponse != "" {
			b.WriteString(subtleStyle.Render("You: ") + answerStyle.Render(st.UserResponse) + "\n")
		}
		help = "n next • space try again • p play • c copy example • R review • q quit"
	}

	if st.ShowResponses {
		var lines []string
		for _, r := range m.responses() {
			lines = append(lines, "• "+r.Text)
		}
		if len(lines) > 0 {
			b.WriteString(responseBoxStyle.Render(m.wrap(strings.Join(lines, "\n"))) + "\n")
		}
	}
	if st.Err != nil {
		b.WriteString(wrongStyle.Render(st.Err.Error()) + "\n")
	}
	return b.String(), help
}

func (m model) phraseView() (string, string) {
	st := m.phrase
	group := m.drill.Phrases.Group()
	if st.Phase == training.PhraseComplete {
		return m.summaryView(), "enter/q quit • ctrl+r again"
	}

	var b strings.Builder
	progress := fmt.Sprintf("%d/%d  ✓ %d", st.Index+1, st.Total, st.Completed)
	if st.RetryPass {
		progress += "  review"
	}
	fmt.Fprintf(&b, "%s %s\n\n", titleStyle.Render(group.Title), subtleStyle.Render(progress))
	b.WriteString(promptStyle.Render(m.wrap(st.Phrase.Japanese)) + "\n\n")

	help := "space speak • a answer • y correct • x wrong • R review • n next • q quit"
	if st.Phase == training.PhraseListening {
		b.WriteString(m.input.View() + "\n")
		help = "enter submit • ctrl+c quit"
	}
	if st.UserResponse != "" {
		b.WriteString(subtleStyle.Render("You: ") + st.UserResponse + "\n")
	}
	if st.ShowAnswer {
		b.WriteString(answerStyle.Render(m.wrap(st.Phrase.English)) + "\n")
	}
	switch st.Mark {
	case training.Correct:
		b.WriteString(answerStyle.Render("✓ correct") + "\n")
	case training.Incorrect:
		b.WriteString(wrongStyle.Render("✗ try again later") + "\n")
	}
	if st.Err != nil {
		b.WriteString(wrongStyle.Render(st.Err.Error()) + "\n")
	}
	return b.String(), help
}

func (m model) summaryView() string {
	if m.summary == "" {
		return m.spinner.View() + " preparing summary…\n"
	}
	return m.summary
}

func (m model) countdownView(left int) string {
	style := timerStyle
	if left <= 2 {
		style = urgentStyle
	}
	return style.Render(fmt.Sprintf("⏱ %ds", left))
}

func (m model) statusBar() string {
	parts := []string{}
	if s := m.status.CompactStatus(); s != "" {
		parts = append(parts, s)
	}
	if m.statusMessage != "" {
		parts = append(parts, statusBarStyle.Render(m.statusMessage))
	}
	return strings.Join(parts, "  ")
}

func (m model) wrap(s string) string {
	return wordwrap.String(s, max(20, m.width-4))
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return flowChangedMsg{}
	}
}

func playCmd(play func() error) tea.Cmd {
	return func() tea.Msg {
		return playDoneMsg{err: play()}
	}
}

// listenCmd opens an answer window off the update loop. Opening resets the
// recognizer, which can wait for a slow end event.
func listenCmd(listen func() error) tea.Cmd {
	return func() tea.Msg {
		return listenDoneMsg{err: listen()}
	}
}

func addReviewCmd(ctx context.Context, store review.Store, ref review.Ref) tea.Cmd {
	return func() tea.Msg {
		item, err := review.NewItem(ref, time.Now())
		if err != nil {
			return errMsg{err}
		}
		_, added, err := store.Add(ctx, item)
		if err != nil {
			return errMsg{fmt.Errorf("add to review: %w", err)}
		}
		log.Debug("review add", "ref", ref, "added", added)
		return reviewAddedMsg{added: added}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return errMsg{fmt.Errorf("copy failed: %w", err)}
		}
		return copiedMsg{text: text}
	}
}

func renderSummaryCmd(cfg Config, width int, markdown string) tea.Cmd {
	return func() tea.Msg {
		out, err := glamourRender(cfg, width, markdown)
		if err != nil {
			log.Warn("summary render failed", "err", err)
			return summaryRenderedMsg{out: markdown}
		}
		return summaryRenderedMsg{out: out}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
