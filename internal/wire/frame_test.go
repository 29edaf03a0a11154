package wire

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns a connected pair of nonblocking AF_UNIX stream fds,
// closed automatically at test cleanup. This exercises ReadAvailable's
// real EAGAIN/EOF classification instead of a fake in-memory stand-in.
func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// readFrameFromBytes writes raw to one end of a fresh socket pair and
// drives ReadAvailable on the other end until a complete frame is
// available, returning its type and payload cursor.
func readFrameFromBytes(t *testing.T, raw []byte) (MessageType, *Cursor) {
	t.Helper()
	rfd, wfd := socketpair(t)
	if _, err := unix.Write(wfd, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewFrameReader()
	for !r.Ready() {
		if err := r.ReadAvailable(rfd); err != nil {
			t.Fatalf("ReadAvailable: %v", err)
		}
	}
	return r.Type(), r.Cursor()
}

func TestFramingTotalLength(t *testing.T) {
	var buf bytes.Buffer
	w := OpenFrame(&buf, Draw)
	e := w.Encoder()
	e.DisplayBuffer(DisplayBuffer{Lines: []DisplayLine{
		{Atoms: []DisplayAtom{{Content: "hello", Face: Face{FG: Color{Named: ColorRed}, BG: Color{Named: ColorDefault}, Attributes: AttrBold}}}},
	}})
	w.Close()

	raw := buf.Bytes()
	if len(raw) < HeaderSize {
		t.Fatalf("frame shorter than header: %d bytes", len(raw))
	}
	declared := int(raw[1]) | int(raw[2])<<8 | int(raw[3])<<16 | int(raw[4])<<24
	if declared != len(raw) {
		t.Fatalf("declared length %d does not match actual frame size %d", declared, len(raw))
	}
}

func TestFramingTwoFramesBackToBack(t *testing.T) {
	var buf bytes.Buffer
	w1 := OpenFrame(&buf, MenuHide)
	w1.Close()
	w2 := OpenFrame(&buf, InfoHide)
	w2.Close()

	raw := buf.Bytes()
	if len(raw) != 2*HeaderSize {
		t.Fatalf("expected two empty-payload frames of %d bytes each, got %d total", HeaderSize, len(raw))
	}

	r := NewFrameReader()
	rfd, wfd := socketpair(t)
	if _, err := unix.Write(wfd, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	for !r.Ready() {
		if err := r.ReadAvailable(rfd); err != nil {
			t.Fatalf("ReadAvailable: %v", err)
		}
	}
	if r.Type() != MenuHide {
		t.Fatalf("first frame type = %v, want MenuHide", r.Type())
	}
	r.Reset()
	for !r.Ready() {
		if err := r.ReadAvailable(rfd); err != nil {
			t.Fatalf("ReadAvailable: %v", err)
		}
	}
	if r.Type() != InfoHide {
		t.Fatalf("second frame type = %v, want InfoHide", r.Type())
	}
}

// TestResumableReaderOneByteAtATime is scenario 1 from the spec: encode a
// Draw frame, deliver it one byte at a time, and check Ready() only fires
// on the last byte, with the decoded value round-tripping.
func TestResumableReaderOneByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	w := OpenFrame(&buf, Draw)
	e := w.Encoder()
	db := DisplayBuffer{Lines: []DisplayLine{
		{Atoms: []DisplayAtom{{Content: "hello", Face: Face{FG: Color{Named: ColorRed}, BG: Color{Named: ColorDefault}, Attributes: AttrBold}}}},
	}}
	e.DisplayBuffer(db)
	w.Close()
	raw := buf.Bytes()

	rfd, wfd := socketpair(t)
	r := NewFrameReader()

	for i, b := range raw {
		if r.Ready() {
			t.Fatalf("became ready before last byte was delivered (at byte %d of %d)", i, len(raw))
		}
		if _, err := unix.Write(wfd, []byte{b}); err != nil {
			t.Fatalf("write byte %d: %v", i, err)
		}
		if err := r.ReadAvailable(rfd); err != nil {
			t.Fatalf("ReadAvailable at byte %d: %v", i, err)
		}
	}
	if !r.Ready() {
		t.Fatal("expected Ready() after final byte")
	}
	if r.Type() != Draw {
		t.Fatalf("type = %v, want Draw", r.Type())
	}
	got, err := r.Cursor().DisplayBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0].Atoms[0].Content != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

// TestResumableReaderArbitraryChunking checks that Ready() fires exactly
// once, on the chunk that delivers the final byte, for a variety of
// chunk-size partitions of the same frame.
func TestResumableReaderArbitraryChunking(t *testing.T) {
	var buf bytes.Buffer
	w := OpenFrame(&buf, DrawStatus)
	e := w.Encoder()
	e.DisplayLine(DisplayLine{Atoms: []DisplayAtom{{Content: "status", Face: Face{}}}})
	e.DisplayLine(DisplayLine{Atoms: []DisplayAtom{{Content: "mode", Face: Face{}}}})
	e.Face(Face{FG: Color{Named: ColorGreen}, BG: Color{Named: ColorDefault}})
	w.Close()
	raw := buf.Bytes()

	for _, chunkSize := range []int{1, 2, 3, 7, len(raw)} {
		rfd, wfd := socketpair(t)
		r := NewFrameReader()

		readyAt := -1
		for pos := 0; pos < len(raw); pos += chunkSize {
			end := pos + chunkSize
			if end > len(raw) {
				end = len(raw)
			}
			if _, err := unix.Write(wfd, raw[pos:end]); err != nil {
				t.Fatalf("write: %v", err)
			}
			// Drain everything the kernel is currently willing to hand
			// back: each ReadAvailable call only targets the reader's
			// current window (header or remaining payload), so more than
			// one call may be needed to catch up after a chunk write.
			for {
				before := r.headerFill + r.writePos
				wasReady := r.Ready()
				if err := r.ReadAvailable(rfd); err != nil {
					t.Fatalf("ReadAvailable: %v", err)
				}
				if r.Ready() && !wasReady {
					readyAt = end
				}
				after := r.headerFill + r.writePos
				if after == before {
					break // nothing left to drain from this chunk
				}
			}
		}
		if readyAt != len(raw) {
			t.Fatalf("chunk size %d: became ready after %d bytes, want %d", chunkSize, readyAt, len(raw))
		}
		statusLine, err := r.Cursor().DisplayLine()
		if err != nil {
			t.Fatalf("chunk size %d: decode: %v", chunkSize, err)
		}
		if statusLine.Atoms[0].Content != "status" {
			t.Fatalf("chunk size %d: mismatch: %+v", chunkSize, statusLine)
		}
	}
}

func TestFrameReaderCorruptLength(t *testing.T) {
	rfd, wfd := socketpair(t)
	// Header declares a length shorter than the header itself.
	raw := []byte{byte(KeyEvent), 2, 0, 0, 0}
	if _, err := unix.Write(wfd, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewFrameReader()
	err := r.ReadAvailable(rfd)
	if err == nil {
		t.Fatal("expected corrupt-frame error")
	}
	de, ok := err.(*DisconnectedError)
	if !ok || de.Graceful {
		t.Fatalf("expected non-graceful DisconnectedError, got %v", err)
	}
}

func TestFrameReaderPeerDisconnectMidFrame(t *testing.T) {
	rfd, wfd := socketpair(t)
	// Write a complete header only, then close before the payload arrives.
	var buf bytes.Buffer
	w := OpenFrame(&buf, Draw)
	w.Encoder().String("this payload never fully arrives")
	w.Close()
	raw := buf.Bytes()

	if _, err := unix.Write(wfd, raw[:HeaderSize]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	unix.Close(wfd)

	r := NewFrameReader()
	// Drain the header.
	if err := r.ReadAvailable(rfd); err != nil {
		t.Fatalf("unexpected error reading header: %v", err)
	}
	if r.Ready() {
		t.Fatal("reader should not be ready with payload outstanding")
	}
	// Next read observes the peer's close mid-payload.
	err := r.ReadAvailable(rfd)
	de, ok := err.(*DisconnectedError)
	if !ok || !de.Graceful {
		t.Fatalf("expected graceful DisconnectedError, got %v", err)
	}
}

func TestFrameReaderEAGAINIsNotAnError(t *testing.T) {
	rfd, _ := socketpair(t)
	r := NewFrameReader()
	if err := r.ReadAvailable(rfd); err != nil {
		t.Fatalf("expected nil error on EAGAIN, got %v", err)
	}
	if r.Ready() {
		t.Fatal("reader should not be ready with nothing written")
	}
}

func TestFrameWriterBackpatchesLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("prefix") // simulate other frames already in the buffer
	w := OpenFrame(&buf, Refresh)
	w.Encoder().Bool(true)
	w.Close()

	raw := buf.Bytes()[len("prefix"):]
	declared := int(raw[1]) | int(raw[2])<<8 | int(raw[3])<<16 | int(raw[4])<<24
	if declared != len(raw) {
		t.Fatalf("declared %d, actual %d", declared, len(raw))
	}
	if MessageType(raw[0]) != Refresh {
		t.Fatalf("wrong type byte")
	}
}
