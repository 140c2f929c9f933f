// Package session is the compose session state machine. The UI loop owns a
// Machine, feeds it keys and renders its View; the post pipeline is reached
// only through Submit and the outcome channel.
package session

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/mikequentel/xpost/internal/logger"
	"github.com/mikequentel/xpost/internal/pipeline"
	"github.com/mikequentel/xpost/internal/store"
)

// State is one of Composing, FilePrompt, DraftBrowser, Posting, Success or
// Error.
type State interface{ isState() }

type (
	Composing    struct{}
	FilePrompt   struct{}
	DraftBrowser struct{}
	Posting      struct{}
	Success      struct{ RemoteID string }
	Error        struct{ Message string }
)

func (Composing) isState()    {}
func (FilePrompt) isState()   {}
func (DraftBrowser) isState() {}
func (Posting) isState()      {}
func (Success) isState()      {}
func (Error) isState()        {}

// Poster submits jobs and delivers their outcomes. *pipeline.Pipeline
// satisfies it.
type Poster interface {
	Submit(job pipeline.Job) error
	Outcomes() <-chan pipeline.Outcome
}

type Drafts interface {
	SaveDraft(ctx context.Context, d store.Draft) error
	LoadDrafts(ctx context.Context) ([]store.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
}

// Images returns PNG bytes.
type Images interface {
	FromFile(path string) ([]byte, error)
	FromClipboard() ([]byte, error)
}

type Machine struct {
	state State

	text   []rune
	cursor int
	image  []byte
	loaded *store.Draft // draft the buffer came from, if any

	path     string
	drafts   []store.Draft
	selected int // -1 when nothing is selected

	notice string
	quit   bool

	poster Poster
	store  Drafts
	images Images
	log    *logger.Logger
	now    func() time.Time
}

type Option func(*Machine)

func WithLogger(l *logger.Logger) Option { return func(m *Machine) { m.log = l } }

func WithClock(fn func() time.Time) Option { return func(m *Machine) { m.now = fn } }

func New(poster Poster, drafts Drafts, images Images, opts ...Option) *Machine {
	m := &Machine{
		state:    Composing{},
		selected: -1,
		poster:   poster,
		store:    drafts,
		images:   images,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) State() State { return m.state }

// Quit reports whether the user asked to exit.
func (m *Machine) Quit() bool { return m.quit }

// Frame runs one UI step: the outcome channel is checked before key is
// handled, so a finished post is visible before new input arrives. key may be
// nil for a tick.
func (m *Machine) Frame(key *Key) {
	m.Poll()
	if key != nil {
		m.HandleKey(*key)
	}
}

// Poll takes at most one outcome without blocking. Outcomes are only
// expected while Posting.
func (m *Machine) Poll() {
	if _, ok := m.state.(Posting); !ok {
		return
	}
	select {
	case out, ok := <-m.poster.Outcomes():
		if !ok {
			m.state = Error{Message: "post pipeline stopped"}
			return
		}
		switch o := out.(type) {
		case pipeline.Success:
			m.log.Info().Str("remote_id", o.RemoteID).Msg("post published")
			m.state = Success{RemoteID: o.RemoteID}
		case pipeline.Failure:
			m.log.Warn().Str("reason", o.Message).Msg("post failed")
			m.state = Error{Message: o.Message}
		}
	default:
	}
}

func (m *Machine) HandleKey(k Key) {
	switch m.state.(type) {
	case Composing:
		m.notice = ""
		m.composing(k)
	case FilePrompt:
		m.filePrompt(k)
	case DraftBrowser:
		m.draftBrowser(k)
	case Posting:
		// locked until an outcome arrives
	case Success, Error:
		if k.IsCancel() {
			m.quit = true
			return
		}
		m.reset()
	}
}

func (m *Machine) composing(k Key) {
	switch k.Code {
	case KeyEsc, KeyCtrlC:
		m.quit = true
	case KeyCtrlU:
		m.path = ""
		m.state = FilePrompt{}
	case KeyCtrlV:
		img, err := m.images.FromClipboard()
		if err != nil {
			m.state = Error{Message: err.Error()}
			return
		}
		m.image = img
		m.notice = "Image pasted from clipboard"
	case KeyCtrlS:
		m.saveDraft()
	case KeyCtrlD:
		m.openDrafts()
	case KeyCtrlP:
		m.submit()
	default:
		m.edit(k)
	}
}

func (m *Machine) submit() {
	text := string(m.text)
	if strings.TrimSpace(text) == "" {
		m.notice = "Nothing to post"
		return
	}
	job := pipeline.Job{Text: text}
	if m.image != nil {
		job.Image = bytes.Clone(m.image)
	}
	if err := m.poster.Submit(job); err != nil {
		m.state = Error{Message: err.Error()}
		return
	}
	m.log.Debug().Int("chars", m.charCount()).Bool("image", job.Image != nil).Msg("post submitted")
	m.state = Posting{}
}

func (m *Machine) saveDraft() {
	content := string(m.text)
	if strings.TrimSpace(content) == "" {
		m.notice = "Nothing to save"
		return
	}
	var d store.Draft
	if m.loaded != nil {
		d = *m.loaded
		d.Update(content, m.now())
	} else {
		var err error
		if d, err = store.NewDraft(content, m.now()); err != nil {
			m.state = Error{Message: "save draft failed: " + err.Error()}
			return
		}
	}
	if err := m.store.SaveDraft(context.Background(), d); err != nil {
		m.state = Error{Message: "save draft failed: " + err.Error()}
		return
	}
	m.loaded = &d
	m.notice = "Draft saved"
}

func (m *Machine) openDrafts() {
	drafts, err := m.store.LoadDrafts(context.Background())
	if err != nil {
		m.state = Error{Message: "load drafts failed: " + err.Error()}
		return
	}
	m.drafts = drafts
	m.selected = -1
	if len(drafts) > 0 {
		m.selected = 0
	}
	m.state = DraftBrowser{}
}

func (m *Machine) filePrompt(k Key) {
	switch k.Code {
	case KeyRune:
		m.path += string(k.Rune)
	case KeyBackspace:
		if r := []rune(m.path); len(r) > 0 {
			m.path = string(r[:len(r)-1])
		}
	case KeyEnter:
		path := strings.TrimSpace(m.path)
		m.path = ""
		if path == "" {
			m.state = Composing{}
			return
		}
		img, err := m.images.FromFile(path)
		if err != nil {
			m.state = Error{Message: err.Error()}
			return
		}
		m.image = img
		m.notice = "Image attached"
		m.state = Composing{}
	case KeyEsc, KeyCtrlC:
		m.path = ""
		m.state = Composing{}
	}
}

func (m *Machine) draftBrowser(k Key) {
	n := len(m.drafts)
	switch k.Code {
	case KeyDown:
		if n > 0 {
			m.selected = (m.selected + 1) % n
		}
	case KeyUp:
		if n > 0 {
			m.selected = (m.selected - 1 + n) % n
		}
	case KeyEnter:
		if m.selected < 0 || m.selected >= n {
			return
		}
		d := m.drafts[m.selected]
		m.text = []rune(d.Content)
		m.cursor = len(m.text)
		m.loaded = &d
		m.state = Composing{}
	case KeyDelete:
		if m.selected < 0 || m.selected >= n {
			return
		}
		id := m.drafts[m.selected].ID
		if err := m.store.DeleteDraft(context.Background(), id); err != nil {
			m.state = Error{Message: "delete draft failed: " + err.Error()}
			return
		}
		m.drafts = append(m.drafts[:m.selected], m.drafts[m.selected+1:]...)
		if m.loaded != nil && m.loaded.ID == id {
			m.loaded = nil
		}
		switch {
		case len(m.drafts) == 0:
			m.selected = -1
		case m.selected >= len(m.drafts):
			m.selected = len(m.drafts) - 1
		}
	case KeyEsc, KeyCtrlC:
		m.state = Composing{}
	}
}

// reset starts a fresh compose: no text, no image, no draft link.
func (m *Machine) reset() {
	m.state = Composing{}
	m.text = nil
	m.cursor = 0
	m.image = nil
	m.loaded = nil
	m.path = ""
	m.notice = ""
}

func (m *Machine) charCount() int {
	return utf8.RuneCountInString(norm.NFC.String(string(m.text)))
}

// View is what the renderer needs for one frame.
type View struct {
	State       State
	Text        string
	Cursor      int // rune offset into Text
	CharCount   int // NFC-normalized runes
	HasImage    bool
	DraftLoaded bool
	PathInput   string
	Drafts      []string // previews, newest first
	Selected    int
	Notice      string
}

func (m *Machine) View() View {
	v := View{
		State:       m.state,
		Text:        string(m.text),
		Cursor:      m.cursor,
		CharCount:   m.charCount(),
		HasImage:    m.image != nil,
		DraftLoaded: m.loaded != nil,
		PathInput:   m.path,
		Selected:    m.selected,
		Notice:      m.notice,
	}
	for _, d := range m.drafts {
		v.Drafts = append(v.Drafts, d.Preview())
	}
	return v
}
