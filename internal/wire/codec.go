package wire

import (
	"bytes"
	"encoding/binary"
)

// Encoder appends the encoding of every payload type in this package to a
// growing byte buffer. Encoding is total: it never fails, since every Go
// value passed to it already satisfies the type it claims to be.
type Encoder struct {
	buf *bytes.Buffer
}

// NewEncoder wraps buf. Multiple frames can share one buffer; each frame's
// own Open/Close call delimits its own span.
func NewEncoder(buf *bytes.Buffer) *Encoder {
	return &Encoder{buf: buf}
}

func (e *Encoder) Uint8(v uint8)   { e.buf.WriteByte(v) }
func (e *Encoder) Int32(v int32)   { e.Uint32(uint32(v)) }
func (e *Encoder) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}
func (e *Encoder) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}
func (e *Encoder) Int64(v int64) { e.Uint64(uint64(v)) }
func (e *Encoder) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}
func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

// String writes a length-prefixed UTF-8 string. The length is a signed
// 32-bit integer, matching the buffer-size-width byte count used elsewhere
// on the wire.
func (e *Encoder) String(s string) {
	e.Int32(int32(len(s)))
	e.buf.WriteString(s)
}

// Bytes writes raw bytes with no length prefix; callers that need a
// length-prefixed blob should use String.
func (e *Encoder) Bytes(b []byte) {
	e.buf.Write(b)
}

// Color writes the color's tag byte, followed by the RGB triple if the tag
// is ColorRGB.
func (e *Encoder) Color(c Color) {
	e.Uint8(byte(c.Named))
	if c.Named == ColorRGB {
		e.Uint8(c.R)
		e.Uint8(c.G)
		e.Uint8(c.B)
	}
}

// Face writes a foreground color, background color, and attribute bitmask.
func (e *Encoder) Face(f Face) {
	e.Color(f.FG)
	e.Color(f.BG)
	e.Uint16(uint16(f.Attributes))
}

// DisplayAtom writes a string followed by its face.
func (e *Encoder) DisplayAtom(a DisplayAtom) {
	e.String(a.Content)
	e.Face(a.Face)
}

// DisplayLine writes a sequence of atoms.
func (e *Encoder) DisplayLine(l DisplayLine) {
	e.Uint32(uint32(len(l.Atoms)))
	for _, a := range l.Atoms {
		e.DisplayAtom(a)
	}
}

// DisplayBuffer writes a sequence of lines.
func (e *Encoder) DisplayBuffer(db DisplayBuffer) {
	e.Uint32(uint32(len(db.Lines)))
	for _, l := range db.Lines {
		e.DisplayLine(l)
	}
}

// DisplayCoord writes a (line, column) pair.
func (e *Encoder) DisplayCoord(c DisplayCoord) {
	e.Int32(c.Line)
	e.Int32(c.Column)
}

// Key writes a modifier byte followed by either the resize coordinate (if
// ModResize is set) or the key code.
func (e *Encoder) Key(k Key) {
	e.Uint8(byte(k.Modifiers))
	if k.IsResize() {
		e.DisplayCoord(k.Resize)
	} else {
		e.Int32(int32(k.Code))
	}
}

// StringSlice writes a Sequence<String>.
func (e *Encoder) StringSlice(items []string) {
	e.Uint32(uint32(len(items)))
	for _, s := range items {
		e.String(s)
	}
}

// DisplayLineSlice writes a Sequence<DisplayLine>.
func (e *Encoder) DisplayLineSlice(items []DisplayLine) {
	e.Uint32(uint32(len(items)))
	for _, l := range items {
		e.DisplayLine(l)
	}
}

// StringMap writes an ordered String->String mapping as a Sequence of
// (key, value) pairs.
func (e *Encoder) StringMap(m *StringMap) {
	e.Uint32(uint32(m.Len()))
	m.Range(func(k, v string) bool {
		e.String(k)
		e.String(v)
		return true
	})
}

// Cursor decodes payload types in order from a fixed byte slice. Every
// method advances the cursor by the encoded size of the value it reads, or
// returns ErrTruncated without advancing past the end of buf.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for decoding starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining reports how many bytes are left to read.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) take(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, ErrTruncated
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) Int64() (int64, error) {
	v, err := c.Uint64()
	return int64(v), err
}

func (c *Cursor) Bool() (bool, error) {
	v, err := c.Uint8()
	return v != 0, err
}

// String reads a length-prefixed UTF-8 string.
func (c *Cursor) String() (string, error) {
	n, err := c.Int32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", ErrTruncated
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Color reads a color tag and, for ColorRGB, its RGB triple.
func (c *Cursor) Color() (Color, error) {
	tag, err := c.Uint8()
	if err != nil {
		return Color{}, err
	}
	col := Color{Named: NamedColor(tag)}
	if col.Named == ColorRGB {
		if col.R, err = c.Uint8(); err != nil {
			return Color{}, err
		}
		if col.G, err = c.Uint8(); err != nil {
			return Color{}, err
		}
		if col.B, err = c.Uint8(); err != nil {
			return Color{}, err
		}
	}
	return col, nil
}

// Face reads a foreground color, background color, and attribute bitmask.
func (c *Cursor) Face() (Face, error) {
	fg, err := c.Color()
	if err != nil {
		return Face{}, err
	}
	bg, err := c.Color()
	if err != nil {
		return Face{}, err
	}
	attr, err := c.Uint16()
	if err != nil {
		return Face{}, err
	}
	return Face{FG: fg, BG: bg, Attributes: Attribute(attr)}, nil
}

// DisplayAtom reads a string followed by its face.
func (c *Cursor) DisplayAtom() (DisplayAtom, error) {
	content, err := c.String()
	if err != nil {
		return DisplayAtom{}, err
	}
	face, err := c.Face()
	if err != nil {
		return DisplayAtom{}, err
	}
	return DisplayAtom{Content: content, Face: face}, nil
}

// DisplayLine reads a sequence of atoms.
func (c *Cursor) DisplayLine() (DisplayLine, error) {
	n, err := c.Uint32()
	if err != nil {
		return DisplayLine{}, err
	}
	atoms := make([]DisplayAtom, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := c.DisplayAtom()
		if err != nil {
			return DisplayLine{}, err
		}
		atoms = append(atoms, a)
	}
	return DisplayLine{Atoms: atoms}, nil
}

// DisplayBuffer reads a sequence of lines.
func (c *Cursor) DisplayBuffer() (DisplayBuffer, error) {
	n, err := c.Uint32()
	if err != nil {
		return DisplayBuffer{}, err
	}
	lines := make([]DisplayLine, 0, n)
	for i := uint32(0); i < n; i++ {
		l, err := c.DisplayLine()
		if err != nil {
			return DisplayBuffer{}, err
		}
		lines = append(lines, l)
	}
	return DisplayBuffer{Lines: lines}, nil
}

// DisplayCoord reads a (line, column) pair.
func (c *Cursor) DisplayCoord() (DisplayCoord, error) {
	line, err := c.Int32()
	if err != nil {
		return DisplayCoord{}, err
	}
	col, err := c.Int32()
	if err != nil {
		return DisplayCoord{}, err
	}
	return DisplayCoord{Line: line, Column: col}, nil
}

// Key reads a modifier byte followed by either a resize coordinate or a
// key code.
func (c *Cursor) Key() (Key, error) {
	mods, err := c.Uint8()
	if err != nil {
		return Key{}, err
	}
	k := Key{Modifiers: KeyModifiers(mods)}
	if k.IsResize() {
		coord, err := c.DisplayCoord()
		if err != nil {
			return Key{}, err
		}
		k.Resize = coord
		return k, nil
	}
	code, err := c.Int32()
	if err != nil {
		return Key{}, err
	}
	k.Code = KeyCode(code)
	return k, nil
}

// StringSlice reads a Sequence<String>.
func (c *Cursor) StringSlice() ([]string, error) {
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := c.String()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

// DisplayLineSlice reads a Sequence<DisplayLine>.
func (c *Cursor) DisplayLineSlice() ([]DisplayLine, error) {
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	items := make([]DisplayLine, 0, n)
	for i := uint32(0); i < n; i++ {
		l, err := c.DisplayLine()
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}

// StringMap reads an ordered String->String mapping.
func (c *Cursor) StringMap() (*StringMap, error) {
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	m := NewStringMap()
	for i := uint32(0); i < n; i++ {
		k, err := c.String()
		if err != nil {
			return nil, err
		}
		v, err := c.String()
		if err != nil {
			return nil, err
		}
		m.Set(k, v)
	}
	return m, nil
}
