// Package tui renders the compose session and the stats view with Bubble Tea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mikequentel/xpost/internal/session"
)

var keyCodes = map[tea.KeyType]session.KeyCode{
	tea.KeyEnter:     session.KeyEnter,
	tea.KeyBackspace: session.KeyBackspace,
	tea.KeyDelete:    session.KeyDelete,
	tea.KeyLeft:      session.KeyLeft,
	tea.KeyRight:     session.KeyRight,
	tea.KeyUp:        session.KeyUp,
	tea.KeyDown:      session.KeyDown,
	tea.KeyHome:      session.KeyHome,
	tea.KeyEnd:       session.KeyEnd,
	tea.KeyEsc:       session.KeyEsc,
	tea.KeyCtrlC:     session.KeyCtrlC,
	tea.KeyCtrlP:     session.KeyCtrlP,
	tea.KeyCtrlU:     session.KeyCtrlU,
	tea.KeyCtrlV:     session.KeyCtrlV,
	tea.KeyCtrlS:     session.KeyCtrlS,
	tea.KeyCtrlD:     session.KeyCtrlD,
}

// translate maps a Bubble Tea key event to session keys. A paste arrives as
// one event with many runes; CRLF and lone CR both become one newline.
func translate(msg tea.KeyMsg) []session.Key {
	switch msg.Type {
	case tea.KeyRunes:
		keys := make([]session.Key, 0, len(msg.Runes))
		for i, r := range msg.Runes {
			if r == '\r' {
				if i+1 < len(msg.Runes) && msg.Runes[i+1] == '\n' {
					continue
				}
				r = '\n'
			}
			keys = append(keys, session.Rune(r))
		}
		return keys
	case tea.KeySpace:
		return []session.Key{session.Rune(' ')}
	case tea.KeyTab:
		return []session.Key{session.Rune('\t')}
	}
	if c, ok := keyCodes[msg.Type]; ok {
		return []session.Key{session.Code(c)}
	}
	return []session.Key{session.Code(session.KeyOther)}
}
