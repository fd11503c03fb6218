package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/logs"
	"github.com/charliek/devlog/internal/session"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	mu         sync.RWMutex
	session    *session.Session
	configFile string
	shutdownFn func()
}

// NewHandlers creates new HTTP handlers
func NewHandlers(sess *session.Session, configFile string, shutdownFn func()) *Handlers {
	return &Handlers{
		session:    sess,
		configFile: configFile,
		shutdownFn: shutdownFn,
	}
}

// SetSession swaps the session requests are served from. Used after a
// reload; open streams on the previous session end when it closes.
func (h *Handlers) SetSession(sess *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = sess
}

func (h *Handlers) current() *session.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// GetStatus handles GET /api/v1/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.current()
	counts, display := sess.Counts()

	resp := StatusResponse{
		Status:        "running",
		SessionID:     sess.ID(),
		UptimeSeconds: int64(time.Since(sess.StartedAt()).Seconds()),
		ConfigFile:    h.configFile,
		APIVersion:    "v1",
		Compiling:     sess.Compiling(),
		Entries:       sess.Store().Len(),
		Counts:        counts,
		DisplayCounts: display,
		Pipeline:      sess.PipelineStats(),
		Filter:        sess.FilterStats(),
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLogs handles GET /api/v1/logs
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	params, err := parseLogParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidQuery,
		})
		return
	}

	sess := h.current()
	entries, total := logs.LimitLast(sess.Resolve(params.View, params.Refresh), params.Limit)
	counts, display := sess.Counts()

	resp := LogsResponse{
		Logs:          make([]LogEntryResponse, len(entries)),
		FilteredCount: len(entries),
		TotalCount:    total,
		Counts:        counts,
		DisplayCounts: display,
	}

	for i, e := range entries {
		resp.Logs[i] = ToLogEntryResponse(e)
		if params.View.Collapse {
			resp.Logs[i].Count = sess.LogCountFor(e.Fingerprint())
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLog handles GET /api/v1/logs/{seq}
func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	seq, err := parseSeq(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.current().Entry(seq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ToLogDetailResponse(detail))
}

// SelectLog handles POST /api/v1/logs/{seq}/select
func (h *Handlers) SelectLog(w http.ResponseWriter, r *http.Request) {
	seq, err := parseSeq(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.current().SetSelected(seq, r.URL.Query().Get("selected") != "false"); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// PostLog handles POST /api/v1/logs. This is the in-process hook for
// applications that report over HTTP instead of linking the engine.
func (h *Handlers) PostLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameSize)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decoding body: %v", domain.ErrInvalidEntry, err))
		return
	}

	severity := domain.SeverityInfo
	if req.Severity != "" {
		s, err := domain.ParseSeverity(req.Severity)
		if err != nil {
			writeError(w, err)
			return
		}
		severity = s
	}

	if err := h.current().Log(req.Message, req.StackTrace, severity); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SuccessResponse{Success: true})
}

// ClearLogs handles POST /api/v1/logs/clear
func (h *Handlers) ClearLogs(w http.ResponseWriter, r *http.Request) {
	sess := h.current()
	if err := sess.Flush(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Retained: sess.Clear()})
}

// GetSources handles GET /api/v1/sources
func (h *Handlers) GetSources(w http.ResponseWriter, r *http.Request) {
	sess := h.current()
	sources := sess.Sources()
	processes := sess.Processes()

	resp := SourceListResponse{
		Sources:   make([]SourceResponse, len(sources)),
		Processes: make([]ProcessResponse, len(processes)),
	}
	for i, s := range sources {
		resp.Sources[i] = ToSourceResponse(s)
	}
	for i, p := range processes {
		resp.Processes[i] = ToProcessResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// StartSource handles POST /api/v1/sources/{name}/start
func (h *Handlers) StartSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), constants.DefaultRequestTimeout)
	defer cancel()

	if err := h.current().StartSource(ctx, name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// StopSource handles POST /api/v1/sources/{name}/stop
func (h *Handlers) StopSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.current().StopSource(name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// BeginCompile handles POST /api/v1/compile/begin
func (h *Handlers) BeginCompile(w http.ResponseWriter, r *http.Request) {
	h.current().BeginCompile()
	writeJSON(w, http.StatusOK, CompileResponse{Compiling: true})
}

// EndCompile handles POST /api/v1/compile/end
func (h *Handlers) EndCompile(w http.ResponseWriter, r *http.Request) {
	n, err := h.current().EndCompile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompileResponse{Compiling: false, Reset: n})
}

// Shutdown handles POST /api/v1/shutdown
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})

	// Trigger shutdown asynchronously
	go func() {
		time.Sleep(100 * time.Millisecond) // Let response complete
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

// parseSeq reads the {seq} URL parameter
func parseSeq(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "seq")
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid sequence %q", domain.ErrEntryNotFound, raw)
	}
	return seq, nil
}

// parseViewSpec reads a view specification from the query string. Missing
// parameters keep their DefaultViewSpec values.
func parseViewSpec(r *http.Request) (domain.ViewSpec, error) {
	q := r.URL.Query()
	view := domain.DefaultViewSpec()

	flags := []struct {
		name string
		dst  *bool
	}{
		{"info", &view.ShowInfo},
		{"warning", &view.ShowWarning},
		{"error", &view.ShowError},
		{"collapse", &view.Collapse},
	}
	for _, f := range flags {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ViewSpec{}, fmt.Errorf("invalid %s value %q", f.name, raw)
		}
		*f.dst = v
	}

	view.SearchText = q.Get("search")
	return view, nil
}

// parseLogParams extracts log query parameters from request
func parseLogParams(r *http.Request) (domain.LogParams, error) {
	view, err := parseViewSpec(r)
	if err != nil {
		return domain.LogParams{}, err
	}
	params := domain.LogParams{View: view, Limit: constants.MaxLogLines}

	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.LogParams{}, fmt.Errorf("invalid refresh value %q", raw)
		}
		params.Refresh = v
	}

	// Limit defaults to and is capped at MaxLogLines to bound response size
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 0 {
			return domain.LogParams{}, fmt.Errorf("invalid limit value %q", raw)
		}
		if l > 0 && l < constants.MaxLogLines {
			params.Limit = l
		}
	}

	return params, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorCode(err)
	message := "an internal error occurred"

	switch {
	case errors.Is(err, domain.ErrInvalidEntry):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrEntryNotFound), errors.Is(err, domain.ErrSourceNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrSourceRunning), errors.Is(err, domain.ErrSourceNotRunning):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, domain.ErrShutdownInProgress), errors.Is(err, domain.ErrPipelineClosed):
		status = http.StatusServiceUnavailable
		message = err.Error()
	default:
		// For unknown errors, log the actual error but return a sanitized message
		// to avoid leaking internal paths or sensitive information
		log.Printf("Internal error: %v", err)
	}

	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
