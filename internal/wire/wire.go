// Package wire defines the transport message schema for image frames.
//
// A frame is a msgpack map:
//
//	{v, seq, stamp_ns, frame_id, trace_id, encoding, width, height, is_bigendian, data}
//
// Streams (replay files, pipes) carry a sequence of messages, each preceded
// by its length as a 4-byte big-endian integer.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// Version is written into every message.
const Version = 1

// MaxMessageSize bounds a single message in a stream (64 MiB, enough for an
// 8-bit 4K RGBA frame with headroom).
const MaxMessageSize = 64 << 20

var (
	ErrVersion  = errors.New("wire: unsupported message version")
	ErrTooLarge = errors.New("wire: message exceeds size limit")
)

// Envelope is the on-the-wire form of a RawFrame.
type Envelope struct {
	V           int    `msgpack:"v"`
	Seq         uint64 `msgpack:"seq"`
	StampNS     int64  `msgpack:"stamp_ns"`
	FrameID     string `msgpack:"frame_id"`
	TraceID     string `msgpack:"trace_id,omitempty"`
	Encoding    string `msgpack:"encoding"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
	IsBigEndian bool   `msgpack:"is_bigendian"`
	Data        []byte `msgpack:"data"`
}

// FromFrame builds an Envelope. Data is shared, not copied.
func FromFrame(f imageingest.RawFrame) Envelope {
	var stamp int64
	if !f.Timestamp.IsZero() {
		stamp = f.Timestamp.UnixNano()
	}
	return Envelope{
		V:           Version,
		Seq:         f.Seq,
		StampNS:     stamp,
		FrameID:     f.Source,
		TraceID:     f.TraceID,
		Encoding:    f.Encoding,
		Width:       f.Width,
		Height:      f.Height,
		IsBigEndian: f.BigEndian,
		Data:        f.Data,
	}
}

// Frame converts the Envelope back into a RawFrame.
func (e Envelope) Frame() imageingest.RawFrame {
	var ts time.Time
	if e.StampNS != 0 {
		ts = time.Unix(0, e.StampNS)
	}
	return imageingest.RawFrame{
		Seq:       e.Seq,
		Timestamp: ts,
		Source:    e.FrameID,
		TraceID:   e.TraceID,
		Encoding:  e.Encoding,
		Width:     e.Width,
		Height:    e.Height,
		BigEndian: e.IsBigEndian,
		Data:      e.Data,
	}
}

// Marshal encodes one frame.
func Marshal(f imageingest.RawFrame) ([]byte, error) {
	b, err := msgpack.Marshal(FromFrame(f))
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame %d: %w", f.Seq, err)
	}
	return b, nil
}

// Unmarshal decodes one frame. The payload is not validated beyond the
// schema; size and encoding checks belong to the decoder.
func Unmarshal(b []byte) (imageingest.RawFrame, error) {
	var e Envelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return imageingest.RawFrame{}, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	if e.V != Version {
		return imageingest.RawFrame{}, fmt.Errorf("%w: %d", ErrVersion, e.V)
	}
	return e.Frame(), nil
}

// Writer writes length-prefixed frames to a stream.
type Writer struct {
	w      io.Writer
	frames int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one frame.
func (w *Writer) Write(f imageingest.RawFrame) error {
	b, err := Marshal(f)
	if err != nil {
		return err
	}
	if len(b) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int { return w.frames }

// Reader reads length-prefixed frames from a stream.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read returns the next frame. It returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF when the stream ends inside a message.
func (r *Reader) Read() (imageingest.RawFrame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		return imageingest.RawFrame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxMessageSize {
		return imageingest.RawFrame{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return imageingest.RawFrame{}, err
	}
	return Unmarshal(b)
}
