// Package wire implements the length-framed binary protocol shared by the
// server and its clients: the message type tag, the payload encoding of
// every composite type that crosses the socket, and the frame reader/writer
// that turn those encodings into (and out of) a byte stream.
package wire

// MessageType tags a frame's payload. The zero value is reserved so a
// zeroed or truncated header is never mistaken for a valid message.
type MessageType byte

const (
	Unknown MessageType = iota
	Connect
	Command
	MenuShow
	MenuSelect
	MenuHide
	InfoShow
	InfoHide
	Draw
	DrawStatus
	Refresh
	SetOptions
	KeyEvent
)

func (t MessageType) String() string {
	switch t {
	case Connect:
		return "Connect"
	case Command:
		return "Command"
	case MenuShow:
		return "MenuShow"
	case MenuSelect:
		return "MenuSelect"
	case MenuHide:
		return "MenuHide"
	case InfoShow:
		return "InfoShow"
	case InfoHide:
		return "InfoHide"
	case Draw:
		return "Draw"
	case DrawStatus:
		return "DrawStatus"
	case Refresh:
		return "Refresh"
	case SetOptions:
		return "SetOptions"
	case KeyEvent:
		return "Key"
	default:
		return "Unknown"
	}
}

// MenuStyle selects how a menu is anchored relative to its coordinate.
type MenuStyle byte

const (
	MenuPrompt MenuStyle = iota
	MenuInline
)

// InfoStyle selects how an info box is anchored relative to its coordinate.
type InfoStyle byte

const (
	InfoPrompt InfoStyle = iota
	InfoInline
	InfoInlineAbove
	InfoInlineBelow
	InfoMenuDoc
)

// NamedColor is the tag byte of a Color. Values below RGB are the ANSI
// 8 colors plus their bright variants; RGB signals that three more bytes
// follow.
type NamedColor byte

const (
	ColorDefault NamedColor = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightBlack
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightMagenta
	ColorBrightCyan
	ColorBrightWhite
	ColorRGB
)

// Color is either one of the named colors or an explicit RGB triple.
type Color struct {
	Named NamedColor
	R, G, B uint8
}

// Attribute is a bitmask of face rendering attributes.
type Attribute uint16

const (
	AttrUnderline Attribute = 1 << iota
	AttrCurlyUnderline
	AttrReverse
	AttrBlink
	AttrBold
	AttrDim
	AttrItalic
	AttrFinalFg
	AttrFinalBg
	AttrFinalAttr
)

// Face controls the presentation of a glyph: its foreground and background
// color, and an attribute bitmask.
type Face struct {
	FG, BG     Color
	Attributes Attribute
}

// DisplayAtom is a run of text sharing a single Face.
type DisplayAtom struct {
	Content string
	Face    Face
}

// DisplayLine is a sequence of atoms making up one row of the display.
type DisplayLine struct {
	Atoms []DisplayAtom
}

// DisplayBuffer is a sequence of lines making up a full screen's contents.
type DisplayBuffer struct {
	Lines []DisplayLine
}

// DisplayCoord is a (line, column) position in the terminal grid.
type DisplayCoord struct {
	Line, Column int32
}

// KeyModifiers is a bitmask of modifiers applying to a Key. Resize is
// carried as a modifier bit rather than a separate message type, per the
// wire format: a Resize key's Code field is ignored and its coordinate is
// carried in the Resize field instead.
type KeyModifiers byte

const (
	ModNone KeyModifiers = 0
	ModControl KeyModifiers = 1 << (iota - 1)
	ModAlt
	ModResize
)

// KeyCode identifies the key that was pressed. Non-negative values are
// literal Unicode codepoints; negative values are named keys with no
// printable representation.
type KeyCode int32

const (
	KeyCodeInvalid KeyCode = -(iota + 1)
	KeyCodeBackspace
	KeyCodeEnter
	KeyCodeEscape
	KeyCodeTab
	KeyCodeUp
	KeyCodeDown
	KeyCodeLeft
	KeyCodeRight
	KeyCodeHome
	KeyCodeEnd
	KeyCodePageUp
	KeyCodePageDown
	KeyCodeDelete
	KeyCodeInsert
	KeyCodeF1
	KeyCodeF2
	KeyCodeF3
	KeyCodeF4
	KeyCodeF5
	KeyCodeF6
	KeyCodeF7
	KeyCodeF8
	KeyCodeF9
	KeyCodeF10
	KeyCodeF11
	KeyCodeF12
)

// Key is an input event: a modifier byte plus either a code (printable
// codepoint or named key) or, when ModResize is set, a new terminal size.
type Key struct {
	Modifiers KeyModifiers
	Code      KeyCode
	Resize    DisplayCoord
}

// IsResize reports whether this key carries a terminal resize rather than
// a keystroke.
func (k Key) IsResize() bool {
	return k.Modifiers&ModResize != 0
}

// StringMap is an ordered mapping from string keys to string values with
// unique keys and insertion-order iteration, matching the wire format's
// IdMap<String, String> (used for env_vars and UI options). It is the only
// IdMap instantiation this protocol needs; a generic value type would add
// indirection no caller exercises.
type StringMap struct {
	keys []string
	vals map[string]string
}

// NewStringMap creates an empty ordered map.
func NewStringMap() *StringMap {
	return &StringMap{vals: make(map[string]string)}
}

// Set inserts or updates key. Updating an existing key does not change its
// position in iteration order, matching IdMap's "insertion order preserved"
// invariant.
func (m *StringMap) Set(key, value string) {
	if m.vals == nil {
		m.vals = make(map[string]string)
	}
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = value
}

// Get returns the value for key and whether it was present.
func (m *StringMap) Get(key string) (string, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Len returns the number of entries.
func (m *StringMap) Len() int {
	return len(m.keys)
}

// Range calls fn for each entry in insertion order. Stops early if fn
// returns false.
func (m *StringMap) Range(fn func(key, value string) bool) {
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// StringMapFromEnv builds a StringMap from a slice of "KEY=VALUE" strings,
// the shape of os.Environ(). Malformed entries (no '=') are skipped.
func StringMapFromEnv(environ []string) *StringMap {
	m := NewStringMap()
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m.Set(kv[:i], kv[i+1:])
				break
			}
		}
	}
	return m
}
