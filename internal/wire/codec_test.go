package wire

import (
	"bytes"
	"testing"
)

// encodeFrame builds a single frame of msgType using fn to write the
// payload, and returns the raw bytes.
func encodeFrame(t *testing.T, msgType MessageType, fn func(*Encoder)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := OpenFrame(&buf, msgType)
	fn(w.Encoder())
	w.Close()
	return buf.Bytes()
}

// decodeFrame parses a single complete frame from raw, delivered over a
// real socket, and returns a cursor over its payload plus its type.
func decodeFrame(t *testing.T, raw []byte) (MessageType, *Cursor) {
	t.Helper()
	return readFrameFromBytes(t, raw)
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "unicode: héllo wörld 世界", string(bytes.Repeat([]byte("x"), 70000))}
	for _, s := range cases {
		raw := encodeFrame(t, KeyEvent, func(e *Encoder) { e.String(s) })
		_, c := decodeFrame(t, raw)
		got, err := c.String()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %q want %q (truncated)", trunc(got), trunc(s))
		}
	}
}

func trunc(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func TestColorRoundTrip(t *testing.T) {
	cases := []Color{
		{Named: ColorDefault},
		{Named: ColorRed},
		{Named: ColorBrightWhite},
		{Named: ColorRGB, R: 10, G: 200, B: 255},
	}
	for _, col := range cases {
		raw := encodeFrame(t, KeyEvent, func(e *Encoder) { e.Color(col) })
		_, c := decodeFrame(t, raw)
		got, err := c.Color()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if got != col {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, col)
		}
	}
}

func TestFaceRoundTrip(t *testing.T) {
	f := Face{
		FG:         Color{Named: ColorRed},
		BG:         Color{Named: ColorRGB, R: 1, G: 2, B: 3},
		Attributes: AttrBold | AttrUnderline | AttrFinalFg,
	}
	raw := encodeFrame(t, KeyEvent, func(e *Encoder) { e.Face(f) })
	_, c := decodeFrame(t, raw)
	got, err := c.Face()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestDisplayBufferRoundTrip(t *testing.T) {
	db := DisplayBuffer{
		Lines: []DisplayLine{
			{Atoms: []DisplayAtom{
				{Content: "hello", Face: Face{FG: Color{Named: ColorRed}, BG: Color{Named: ColorDefault}, Attributes: AttrBold}},
			}},
			{Atoms: nil}, // empty line
		},
	}
	raw := encodeFrame(t, Draw, func(e *Encoder) { e.DisplayBuffer(db) })
	typ, c := decodeFrame(t, raw)
	if typ != Draw {
		t.Fatalf("got type %v want Draw", typ)
	}
	got, err := c.DisplayBuffer()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got.Lines) != 2 || len(got.Lines[0].Atoms) != 1 || got.Lines[0].Atoms[0].Content != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Lines[1].Atoms) != 0 {
		t.Fatalf("expected empty second line, got %+v", got.Lines[1])
	}
}

func TestKeyRoundTrip(t *testing.T) {
	cases := []Key{
		{Modifiers: ModNone, Code: KeyCode('a')},
		{Modifiers: ModControl, Code: KeyCode('c')},
		{Modifiers: ModAlt | ModControl, Code: KeyCodeF5},
		{Modifiers: ModResize, Resize: DisplayCoord{Line: 40, Column: 120}},
	}
	for _, k := range cases {
		raw := encodeFrame(t, KeyEvent, func(e *Encoder) { e.Key(k) })
		_, c := decodeFrame(t, raw)
		got, err := c.Key()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if got != k {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, k)
		}
	}
}

func TestStringMapRoundTrip(t *testing.T) {
	m := NewStringMap()
	m.Set("USER", "kak")
	m.Set("TERM", "xterm-256color")
	m.Set("EMPTY", "")

	raw := encodeFrame(t, Connect, func(e *Encoder) { e.StringMap(m) })
	_, c := decodeFrame(t, raw)
	got, err := c.StringMap()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("got %d entries, want 3", got.Len())
	}
	var order []string
	got.Range(func(k, v string) bool { order = append(order, k); return true })
	if order[0] != "USER" || order[1] != "TERM" || order[2] != "EMPTY" {
		t.Fatalf("insertion order not preserved: %v", order)
	}
	if v, _ := got.Get("USER"); v != "kak" {
		t.Fatalf("got USER=%q want kak", v)
	}
}

func TestEmptySequenceRoundTrip(t *testing.T) {
	raw := encodeFrame(t, MenuShow, func(e *Encoder) { e.DisplayLineSlice(nil) })
	_, c := decodeFrame(t, raw)
	got, err := c.DisplayLineSlice()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestCursorTruncated(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	if _, err := c.Uint32(); err == nil {
		t.Fatal("expected truncation error")
	}
}
