package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/logs"
)

// StreamLogs handles GET /api/v1/logs/stream (SSE).
//
// Each entry is sent as an event whose id is the entry's sequence number.
// A client reconnecting with Last-Event-ID first receives the stored
// entries it missed that match its view.
func (h *Handlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	view, err := parseViewSpec(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidQuery,
		})
		return
	}

	var resumeAfter uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		resumeAfter, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid Last-Event-ID: %q", v),
				Code:  domain.ErrCodeInvalidQuery,
			})
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "streaming not supported",
			Code:  domain.ErrCodeStreamingNotSupported,
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before reading the backlog so nothing appended in between
	// is missed. Entries seen in both are sent once.
	sess := h.current()
	subID, ch := sess.Subscribe(&view)
	defer sess.Unsubscribe(subID)

	fmt.Fprintf(w, ": connected %s\n\n", sess.ID())
	flusher.Flush()

	var lastSent uint64
	send := func(entry domain.LogEntry) bool {
		if entry.Seq <= lastSent {
			return true
		}
		data, err := json.Marshal(ToLogEntryResponse(entry))
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", entry.Seq, data); err != nil {
			log.Printf("SSE write error (client likely disconnected): %v", err)
			return false
		}
		lastSent = entry.Seq
		return true
	}

	if resumeAfter > 0 {
		lastSent = resumeAfter
		for _, entry := range logs.FilterEntries(sess.Store().Entries(), view) {
			if !send(entry) {
				return
			}
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(constants.StreamHeartbeatInterval)
	defer heartbeat.Stop()

	// Slow clients lose entries at the subscription buffer rather than
	// stalling the store. A closed channel means the session was closed
	// or replaced by a reload.
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if !send(entry) {
				return
			}
			flusher.Flush()
		}
	}
}
