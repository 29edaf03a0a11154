package wire

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// HeaderSize is the fixed size of a frame header: a 1-byte MessageType tag
// followed by a 4-byte little-endian length covering the whole frame
// (tag + length + payload).
const HeaderSize = 5

// FrameWriter appends a single frame to a shared output buffer, back-
// patching the length field once the payload is fully written. A writer
// must be closed before the buffer is drained to the socket; partial
// frames are never sent.
type FrameWriter struct {
	buf   *bytes.Buffer
	start int
	closed bool
}

// OpenFrame reserves the header for a new frame of the given type at the
// current end of buf and returns a handle carrying the offset to patch on
// Close.
func OpenFrame(buf *bytes.Buffer, msgType MessageType) *FrameWriter {
	start := buf.Len()
	buf.WriteByte(byte(msgType))
	buf.Write([]byte{0, 0, 0, 0})
	return &FrameWriter{buf: buf, start: start}
}

// Encoder returns an Encoder appending to this frame's payload.
func (w *FrameWriter) Encoder() *Encoder {
	return NewEncoder(w.buf)
}

// Close writes the final frame length into the reserved header bytes. It
// is idempotent; calling it more than once is a no-op.
func (w *FrameWriter) Close() {
	if w.closed {
		return
	}
	w.closed = true
	total := w.buf.Len() - w.start
	b := w.buf.Bytes()
	binary.LittleEndian.PutUint32(b[w.start+1:w.start+HeaderSize], uint32(total))
}

// FrameReader incrementally accumulates the bytes of a single frame across
// any number of nonblocking reads, then exposes a Cursor over its payload
// once the frame is complete. It is resumable: ReadAvailable can be called
// any number of times with control returning to the caller's event loop in
// between, and progress is monotonic until Reset.
type FrameReader struct {
	header      [HeaderSize]byte
	headerFill  int
	storage     []byte
	writePos    int
	declaredLen int     // -1 until the header is complete
	cursor      *Cursor // payload cursor, created on first Cursor call
}

// NewFrameReader creates a reader with no bytes accumulated yet.
func NewFrameReader() *FrameReader {
	return &FrameReader{declaredLen: -1}
}

// headerComplete reports whether all 5 header bytes have been delivered.
func (r *FrameReader) headerComplete() bool {
	return r.headerFill == HeaderSize
}

// finishHeader validates and records the declared length once the last
// header byte arrives, sizing storage for the payload that follows.
func (r *FrameReader) finishHeader() error {
	length := binary.LittleEndian.Uint32(r.header[1:HeaderSize])
	if length < HeaderSize {
		return Disconnected("corrupt frame: declared length below header size", false)
	}
	r.declaredLen = int(length)
	r.storage = make([]byte, r.declaredLen)
	copy(r.storage, r.header[:])
	r.writePos = HeaderSize
	return nil
}

// ReadAvailable performs at most one nonblocking read(2) on fd, feeding
// whichever bytes are still missing: header bytes while the header is
// incomplete, then payload bytes up to the declared length. A read
// returning 0 signals a graceful disconnect; EAGAIN/EWOULDBLOCK is not an
// error (the caller should wait for the next readiness notification); any
// other negative result is a non-graceful disconnect.
func (r *FrameReader) ReadAvailable(fd int) error {
	var target []byte
	if !r.headerComplete() {
		target = r.header[r.headerFill:HeaderSize]
	} else {
		if r.writePos >= r.declaredLen {
			return nil // frame already complete; nothing to do until Reset
		}
		target = r.storage[r.writePos:r.declaredLen]
	}

	n, err := unix.Read(fd, target)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return Disconnected(err.Error(), false)
	}
	if n == 0 {
		return Disconnected("peer disconnected", true)
	}

	if !r.headerComplete() {
		r.headerFill += n
		if r.headerComplete() {
			return r.finishHeader()
		}
		return nil
	}

	r.writePos += n
	return nil
}

// Ready reports whether the header is complete and the full payload has
// been accumulated.
func (r *FrameReader) Ready() bool {
	return r.declaredLen >= 0 && r.writePos == r.declaredLen
}

// Type returns the frame's message type. Valid once the header is
// complete.
func (r *FrameReader) Type() MessageType {
	return MessageType(r.header[0])
}

// Size returns the payload size in bytes (total length minus the header).
// Valid once the header is complete.
func (r *FrameReader) Size() int {
	return r.declaredLen - HeaderSize
}

// Cursor returns the decoding cursor over the frame's payload. Every call
// for the same frame returns the same cursor, so successive reads continue
// where the previous one stopped. Only valid when Ready reports true.
func (r *FrameReader) Cursor() *Cursor {
	if r.cursor == nil {
		r.cursor = NewCursor(r.storage[HeaderSize:r.declaredLen])
	}
	return r.cursor
}

// Reset clears all accumulated state so the reader can be reused for the
// next frame. The payload cursor is discarded, so the next frame's Cursor
// starts just past its header.
func (r *FrameReader) Reset() {
	r.headerFill = 0
	r.storage = nil
	r.writePos = 0
	r.declaredLen = -1
	r.cursor = nil
}
