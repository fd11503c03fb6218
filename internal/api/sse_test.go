package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/devlog/internal/domain"
)

// openStream connects to the stream endpoint and returns a reader
// positioned after the connection comment. A non-empty lastEventID is
// sent as the Last-Event-ID header.
func openStream(t *testing.T, url string, lastEventID ...string) (*bufio.Reader, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	require.NoError(t, err)
	if len(lastEventID) > 0 {
		req.Header.Set("Last-Event-ID", lastEventID[0])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, ": connected"), "got %q", line)

	return reader, func() {
		cancel()
		resp.Body.Close()
	}
}

// nextEvent reads lines until a data line arrives
func nextEvent(t *testing.T, reader *bufio.Reader) LogEntryResponse {
	t.Helper()

	type result struct {
		entry LogEntryResponse
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var entry LogEntryResponse
				ch <- result{entry: entry, err: json.Unmarshal([]byte(data), &entry)}
				return
			}
		}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.entry
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return LogEntryResponse{}
	}
}

func TestStreamLogs_DataFormat(t *testing.T) {
	server, sess := setupTestServer(t)
	ts := httptest.NewServer(server.router)
	defer ts.Close()

	reader, closeStream := openStream(t, ts.URL+"/api/v1/logs/stream")
	defer closeStream()

	require.NoError(t, sess.Log("player fell", playerStack, domain.SeverityError))

	entry := nextEvent(t, reader)
	assert.Equal(t, "player fell", entry.Message)
	assert.Equal(t, "error", entry.Severity)
	assert.Equal(t, "in_process", entry.Origin)
	assert.NotZero(t, entry.Seq)
	require.Len(t, entry.Frames, 2)

	_, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	assert.NoError(t, err)
}

func TestStreamLogs_ViewFilter(t *testing.T) {
	server, sess := setupTestServer(t)
	ts := httptest.NewServer(server.router)
	defer ts.Close()

	reader, closeStream := openStream(t, ts.URL+"/api/v1/logs/stream?info=false&warning=false&search=fell")
	defer closeStream()

	require.NoError(t, sess.Log("player fell", "", domain.SeverityInfo))
	require.NoError(t, sess.Log("enemy spawned", "", domain.SeverityError))
	require.NoError(t, sess.Log("player fell again", "", domain.SeverityAssert))

	entry := nextEvent(t, reader)
	assert.Equal(t, "player fell again", entry.Message)
	assert.Equal(t, "assert", entry.Severity)
}

func TestStreamLogs_EndsWhenSessionCloses(t *testing.T) {
	server, sess := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/logs/stream", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.handlers.StreamLogs(rec, req)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sess.Store().Subscribers() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Close(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish after the session closed")
	}
}

func TestStreamLogs_ClientDisconnect(t *testing.T) {
	server, sess := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v1/logs/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.handlers.StreamLogs(rec, req)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sess.Store().Subscribers() == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not finish after context cancel")
	}
	assert.Equal(t, 0, sess.Store().Subscribers())
}

func TestStreamLogs_InvalidQuery(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/logs/stream?collapse=sometimes", nil)
	rec := httptest.NewRecorder()

	server.handlers.StreamLogs(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, domain.ErrCodeInvalidQuery, errResp.Code)
}

func TestStreamLogs_ResumesAfterLastEventID(t *testing.T) {
	server, sess := setupTestServer(t)
	ts := httptest.NewServer(server.router)
	defer ts.Close()

	logAll(t, sess,
		IngestRequest{Message: "boot"},
		IngestRequest{Message: "player fell", Severity: "error"},
		IngestRequest{Message: "level loaded"},
		IngestRequest{Message: "player fell twice", Severity: "error"},
	)
	first := sess.Store().Entries()[0].Seq

	reader, closeStream := openStream(t, ts.URL+"/api/v1/logs/stream?search=player",
		strconv.FormatUint(first, 10))
	defer closeStream()

	// Backlog after the given id, filtered by the view
	assert.Equal(t, "player fell", nextEvent(t, reader).Message)
	assert.Equal(t, "player fell twice", nextEvent(t, reader).Message)

	// Then live entries
	require.NoError(t, sess.Log("player respawned", "", domain.SeverityInfo))
	live := nextEvent(t, reader)
	assert.Equal(t, "player respawned", live.Message)
	assert.Greater(t, live.Seq, first+3)
}

func TestStreamLogs_InvalidLastEventID(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/logs/stream", nil)
	req.Header.Set("Last-Event-ID", "yesterday")
	rec := httptest.NewRecorder()

	server.handlers.StreamLogs(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Last-Event-ID")
}

// plainWriter hides the recorder's Flush method
type plainWriter struct {
	http.ResponseWriter
}

func TestStreamLogs_NoFlusher(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/logs/stream", nil)
	rec := httptest.NewRecorder()

	server.handlers.StreamLogs(plainWriter{rec}, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrCodeStreamingNotSupported)
}
