package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mikequentel/xpost/internal/session"
)

// TickInterval is how often the session polls for a post outcome while no
// key arrives.
const TickInterval = 100 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Compose drives a session.Machine. The Bubble Tea loop is the only writer of
// session state.
type Compose struct {
	machine *session.Machine
	width   int
	height  int
}

func NewCompose(m *session.Machine) Compose { return Compose{machine: m} }

func (c Compose) Init() tea.Cmd { return tick() }

func (c Compose) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		c.machine.Frame(nil)
		if c.machine.Quit() {
			return c, tea.Quit
		}
		return c, tick()
	case tea.KeyMsg:
		keys := translate(msg)
		for i := range keys {
			c.machine.Frame(&keys[i])
			if c.machine.Quit() {
				return c, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
	}
	return c, nil
}

func (c Compose) View() string {
	v := c.machine.View()
	if _, ok := v.State.(session.DraftBrowser); ok {
		return c.draftsView(v)
	}

	body := boxStyle.Width(c.boxWidth()).Render(withCursor(v))
	if _, ok := v.State.(session.FilePrompt); ok {
		body = promptStyle.Render("Image path: "+v.PathInput+"█") + "\n\n" + body
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("xpost"),
		body,
		statusLine(v),
		helpStyle.Render(help(v.State)),
	)
}

func (c Compose) draftsView(v session.View) string {
	var b strings.Builder
	if len(v.Drafts) == 0 {
		b.WriteString(dimStyle.Render("No saved drafts"))
	}
	for i, p := range v.Drafts {
		if i == v.Selected {
			b.WriteString(selectedStyle.Render(">> " + p))
		} else {
			b.WriteString("   " + p)
		}
		b.WriteByte('\n')
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Saved Drafts"),
		boxStyle.Width(c.boxWidth()).Render(strings.TrimRight(b.String(), "\n")),
		statusStyle.Render(fmt.Sprintf("Drafts: %d saved", len(v.Drafts))),
		helpStyle.Render(help(v.State)),
	)
}

func (c Compose) boxWidth() int {
	if c.width > 4 {
		return c.width - 4
	}
	return 76
}

func withCursor(v session.View) string {
	r := []rune(v.Text)
	if v.Cursor > len(r) {
		return v.Text
	}
	if _, ok := v.State.(session.Composing); !ok {
		return v.Text
	}
	return string(r[:v.Cursor]) + "█" + string(r[v.Cursor:])
}

func statusLine(v session.View) string {
	switch st := v.State.(type) {
	case session.Posting:
		return warnStyle.Render("Posting...")
	case session.Success:
		return okStyle.Render("✓ Posted successfully! https://x.com/user/status/" + st.RemoteID)
	case session.Error:
		return errStyle.Render("✗ " + st.Message)
	case session.FilePrompt:
		return statusStyle.Render("Enter the path to an image file")
	}
	s := fmt.Sprintf("Characters: %d", v.CharCount)
	if v.HasImage {
		s += " | Image attached"
	}
	if v.DraftLoaded {
		s += " | Draft loaded"
	}
	if v.Notice != "" {
		s += " | " + v.Notice
	}
	return statusStyle.Render(s)
}

func help(st session.State) string {
	switch st.(type) {
	case session.FilePrompt:
		return "Enter: attach | Esc: cancel"
	case session.DraftBrowser:
		return "↑/↓: navigate | Enter: load draft | Delete: remove draft | Esc: back"
	case session.Posting:
		return "Please wait..."
	case session.Success, session.Error:
		return "Any key: new post | Esc: exit"
	}
	return "Ctrl+U: attach image | Ctrl+V: paste image | Ctrl+S: save draft | Ctrl+D: drafts | Ctrl+P: post | Esc: exit"
}
