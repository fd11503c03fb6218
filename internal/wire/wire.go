// Package wire implements the framing used on the forwarded device socket.
//
// Each record is a 4 byte big-endian payload length followed by a JSON
// object:
//
//	{"type":"error","message":"...","stack":"...","time":1700000000000}
//
// time is unix milliseconds and may be omitted.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// HeaderSize is the length prefix size in bytes
const HeaderSize = 4

// ErrTruncated is returned when the stream ends inside a frame
var ErrTruncated = errors.New("truncated frame")

// Record is one framed log record
type Record struct {
	Type    string
	Message string
	Stack   string
	Time    time.Time
}

type recordJSON struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Time    int64  `json:"time,omitempty"`
}

var parserPool fastjson.ParserPool

// ParseRecord decodes a JSON payload. A payload that is not a JSON object
// is returned as a record whose message is the raw text.
func ParseRecord(payload []byte) Record {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil || v.Type() != fastjson.TypeObject {
		return Record{Message: string(payload)}
	}

	rec := Record{
		Type:    string(v.GetStringBytes("type")),
		Message: string(v.GetStringBytes("message")),
		Stack:   string(v.GetStringBytes("stack")),
	}
	if rec.Message == "" {
		rec.Message = string(v.GetStringBytes("msg"))
	}

	switch tv := v.Get("time"); {
	case tv == nil:
	case tv.Type() == fastjson.TypeNumber:
		rec.Time = time.UnixMilli(tv.GetInt64())
	case tv.Type() == fastjson.TypeString:
		if t, err := time.Parse(time.RFC3339Nano, string(tv.GetStringBytes())); err == nil {
			rec.Time = t
		}
	}
	return rec
}

// Encoder writes framed records. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one record
func (e *Encoder) Encode(rec Record) error {
	payload := recordJSON{Type: rec.Type, Message: rec.Message, Stack: rec.Stack}
	if !rec.Time.IsZero() {
		payload.Time = rec.Time.UnixMilli()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return e.WriteFrame(data)
}

// WriteFrame writes a raw payload with its length prefix
func (e *Encoder) WriteFrame(payload []byte) error {
	if len(payload) > constants.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", domain.ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.w.Write(buf)
	return err
}

// Decoder reads framed records from a byte stream. Reads may split a
// frame anywhere; the decoder reassembles it.
type Decoder struct {
	r       *bufio.Reader
	maxSize int
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       bufio.NewReaderSize(r, constants.ScannerBufferSize),
		maxSize: constants.MaxFrameSize,
	}
}

// Decode reads the next record.
//
// It returns io.EOF when the stream ends on a frame boundary. When the
// stream ends inside a payload, for any reason, it returns whatever was
// received as a record together with an error wrapping ErrTruncated and
// the read error. A zero-length frame is a keepalive and decodes to an
// empty Record. A length above the frame limit returns
// domain.ErrFrameTooLarge; the stream cannot be resynchronised after that.
func (d *Decoder) Decode() (Record, error) {
	var header [HeaderSize]byte
	if n, err := io.ReadFull(d.r, header[:]); err != nil {
		if n > 0 {
			return Record{}, truncated(err)
		}
		return Record{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if int64(length) > int64(d.maxSize) {
		return Record{}, fmt.Errorf("%w: %d bytes", domain.ErrFrameTooLarge, length)
	}
	if length == 0 {
		return Record{}, nil
	}

	payload := make([]byte, length)
	n, err := io.ReadFull(d.r, payload)
	if err != nil {
		if n == 0 {
			return Record{}, truncated(err)
		}
		return salvage(payload[:n]), truncated(err)
	}

	return ParseRecord(payload), nil
}

// truncated wraps the error that ended a frame early. Running out of
// input is reported as plain ErrTruncated.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}

// IsKeepalive reports whether rec came from a zero-length frame
func (r Record) IsKeepalive() bool {
	return r == Record{}
}

// salvage recovers what it can from a partial payload. Truncation usually
// cuts the JSON inside the message or stack string, so closing it is tried
// before falling back to the raw text.
func salvage(partial []byte) Record {
	for _, suffix := range []string{"", `"}`, `}`} {
		candidate := append(append([]byte{}, partial...), suffix...)
		if fastjson.ValidateBytes(candidate) == nil {
			return ParseRecord(candidate)
		}
	}
	return Record{Message: string(partial)}
}
