package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneByteReader delivers the stream a byte at a time to split every frame
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	ts := time.UnixMilli(1760000000123)
	require.NoError(t, enc.Encode(Record{Type: "error", Message: "boom", Stack: "at Foo.cs:12", Time: ts}))
	require.NoError(t, enc.Encode(Record{Type: "log", Message: "hello"}))

	dec := NewDecoder(oneByteReader{&buf})

	rec, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Type)
	assert.Equal(t, "boom", rec.Message)
	assert.Equal(t, "at Foo.cs:12", rec.Stack)
	assert.True(t, ts.Equal(rec.Time))

	rec, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Message)
	assert.True(t, rec.Time.IsZero())

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecode_MessageWithNewlines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Record{Type: "warning", Message: "line one\nline two"}))

	rec, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", rec.Message)
}

func TestDecode_MalformedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).WriteFrame([]byte("not json at all")))

	rec, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)
	assert.Equal(t, "", rec.Type)
	assert.Equal(t, "not json at all", rec.Message)
}

func TestDecode_TruncatedPayload(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, NewEncoder(&full).Encode(Record{Type: "exception", Message: "NullReferenceException: boom"}))

	data := full.Bytes()
	cut := bytes.Index(data, []byte("boom")) + 2

	rec, err := NewDecoder(bytes.NewReader(data[:cut])).Decode()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, "exception", rec.Type)
	assert.Equal(t, "NullReferenceException: bo", rec.Message)
}

func TestDecode_TruncatedGarbage(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, NewEncoder(&full).WriteFrame([]byte("raw text payload")))

	rec, err := NewDecoder(bytes.NewReader(full.Bytes()[:HeaderSize+3])).Decode()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, "raw", rec.Message)
}

func TestDecode_TruncatedHeader(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0, 0})).Decode()
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = NewDecoder(bytes.NewReader([]byte{0, 0, 0, 9})).Decode()
	assert.ErrorIs(t, err, ErrTruncated)
}

// failingReader returns its data and then err instead of io.EOF
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestDecode_ConnectionEndsInsidePayload(t *testing.T) {
	partial := append([]byte{0, 0, 0, 100}, []byte(`{"type":"exception","message":"Null`)...)

	tests := []struct {
		name  string
		cause error
	}{
		{"closed locally", net.ErrClosed},
		{"reset by peer", syscall.ECONNRESET},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewDecoder(&failingReader{data: partial, err: tt.cause}).Decode()
			assert.ErrorIs(t, err, ErrTruncated)
			assert.ErrorIs(t, err, tt.cause)
			assert.Equal(t, "exception", rec.Type)
			assert.Equal(t, "Null", rec.Message)
		})
	}
}

func TestDecode_ConnectionEndsBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Record{Message: "done"}))

	dec := NewDecoder(&failingReader{data: buf.Bytes(), err: net.ErrClosed})
	rec, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "done", rec.Message)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.NotErrorIs(t, err, ErrTruncated)
}

func TestDecode_Keepalive(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.WriteFrame(nil))
	require.NoError(t, enc.Encode(Record{Type: "log", Message: "after keepalive"}))

	dec := NewDecoder(&buf)
	rec, err := dec.Decode()
	require.NoError(t, err)
	assert.True(t, rec.IsKeepalive())

	rec, err = dec.Decode()
	require.NoError(t, err)
	assert.False(t, rec.IsKeepalive())
	assert.Equal(t, "after keepalive", rec.Message)
}

func TestDecode_FrameTooLarge(t *testing.T) {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header, constants.MaxFrameSize+1)

	_, err := NewDecoder(bytes.NewReader(header)).Decode()
	assert.ErrorIs(t, err, domain.ErrFrameTooLarge)

	err = NewEncoder(io.Discard).WriteFrame(make([]byte, constants.MaxFrameSize+1))
	assert.ErrorIs(t, err, domain.ErrFrameTooLarge)
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Record
	}{
		{"full", `{"type":"error","message":"m","stack":"s"}`, Record{Type: "error", Message: "m", Stack: "s"}},
		{"msg alias", `{"type":"log","msg":"m"}`, Record{Type: "log", Message: "m"}},
		{"array is raw", `[1,2]`, Record{Message: "[1,2]"}},
		{"rfc3339 time", `{"message":"m","time":"2026-10-17T12:00:00Z"}`, Record{Message: "m", Time: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}},
		{"bad time ignored", `{"message":"m","time":"yesterday"}`, Record{Message: "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRecord([]byte(tt.payload))
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Message, got.Message)
			assert.Equal(t, tt.want.Stack, got.Stack)
			assert.True(t, tt.want.Time.Equal(got.Time))
		})
	}
}
