package session

type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyHome
	KeyEnd
	KeyEsc
	KeyCtrlC
	KeyCtrlP
	KeyCtrlU
	KeyCtrlV
	KeyCtrlS
	KeyCtrlD
	KeyOther
)

// Key is a decoded keyboard event. Rune is set only for KeyRune.
type Key struct {
	Code KeyCode
	Rune rune
}

func Rune(r rune) Key { return Key{Code: KeyRune, Rune: r} }

func Code(c KeyCode) Key { return Key{Code: c} }

// IsCancel reports whether k means "exit" in the terminal states.
func (k Key) IsCancel() bool { return k.Code == KeyEsc || k.Code == KeyCtrlC }

// edit applies a text editing key to the compose buffer.
func (m *Machine) edit(k Key) {
	switch k.Code {
	case KeyRune:
		m.insert(k.Rune)
	case KeyEnter:
		m.insert('\n')
	case KeyBackspace:
		if m.cursor > 0 {
			m.text = append(m.text[:m.cursor-1], m.text[m.cursor:]...)
			m.cursor--
		}
	case KeyDelete:
		if m.cursor < len(m.text) {
			m.text = append(m.text[:m.cursor], m.text[m.cursor+1:]...)
		}
	case KeyLeft:
		if m.cursor > 0 {
			m.cursor--
		}
	case KeyRight:
		if m.cursor < len(m.text) {
			m.cursor++
		}
	case KeyHome:
		for m.cursor > 0 && m.text[m.cursor-1] != '\n' {
			m.cursor--
		}
	case KeyEnd:
		for m.cursor < len(m.text) && m.text[m.cursor] != '\n' {
			m.cursor++
		}
	}
}

func (m *Machine) insert(r rune) {
	m.text = append(m.text, 0)
	copy(m.text[m.cursor+1:], m.text[m.cursor:])
	m.text[m.cursor] = r
	m.cursor++
}
