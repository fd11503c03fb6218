package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/daemon"
	"github.com/charliek/devlog/internal/domain"
)

// Client is an HTTP client for the devlog API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no timeout; streams end with their context
	streamClient *http.Client
}

// NewClient creates a new API client. The auth token of the server
// running in the working directory is picked up when present.
func NewClient(baseURL string) *Client {
	var token string
	if cwd, err := os.Getwd(); err == nil {
		token, _ = daemon.LoadToken(cwd) // Ignore error - token may not exist
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// GetStatus gets the session status
func (c *Client) GetStatus() (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get("/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLogs resolves a view on the server
func (c *Client) GetLogs(params domain.LogParams) (*api.LogsResponse, error) {
	query := viewQuery(params.View)
	if params.Refresh {
		query.Set("refresh", "true")
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}

	var resp api.LogsResponse
	if err := c.get("/api/v1/logs?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLog gets one entry with its stack locations
func (c *Client) GetLog(seq uint64) (*api.LogDetailResponse, error) {
	var resp api.LogDetailResponse
	if err := c.get("/api/v1/logs/"+strconv.FormatUint(seq, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SelectLog marks or unmarks an entry as the selected one
func (c *Client) SelectLog(seq uint64, selected bool) error {
	path := "/api/v1/logs/" + strconv.FormatUint(seq, 10) + "/select"
	if !selected {
		path += "?selected=false"
	}
	var resp api.SuccessResponse
	return c.post(path, nil, &resp)
}

// ClearLogs clears the console and returns the number of retained entries
func (c *Client) ClearLogs() (int, error) {
	var resp api.ClearResponse
	if err := c.post("/api/v1/logs/clear", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Retained, nil
}

// SendLog submits an entry through the in-process hook
func (c *Client) SendLog(req api.IngestRequest) error {
	var resp api.SuccessResponse
	return c.post("/api/v1/logs", req, &resp)
}

// GetSources gets the ingestors and collaborator processes
func (c *Client) GetSources() (*api.SourceListResponse, error) {
	var resp api.SourceListResponse
	if err := c.get("/api/v1/sources", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSource starts an ingestor
func (c *Client) StartSource(name string) error {
	var resp api.SuccessResponse
	return c.post("/api/v1/sources/"+url.PathEscape(name)+"/start", nil, &resp)
}

// StopSource stops an ingestor
func (c *Client) StopSource(name string) error {
	var resp api.SuccessResponse
	return c.post("/api/v1/sources/"+url.PathEscape(name)+"/stop", nil, &resp)
}

// BeginCompile starts a compile cycle
func (c *Client) BeginCompile() error {
	var resp api.CompileResponse
	return c.post("/api/v1/compile/begin", nil, &resp)
}

// EndCompile ends a compile cycle and returns the number of entries that
// stopped being transient
func (c *Client) EndCompile() (int, error) {
	var resp api.CompileResponse
	if err := c.post("/api/v1/compile/end", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Reset, nil
}

// Shutdown shuts down the server
func (c *Client) Shutdown() error {
	var resp api.SuccessResponse
	return c.post("/api/v1/shutdown", nil, &resp)
}

// StreamLogs streams entries matching the view and calls the callback for
// each one. It returns when the server ends the stream or ctx is done.
func (c *Client) StreamLogs(ctx context.Context, params domain.LogParams, callback func(api.LogEntryResponse)) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/logs/stream?"+viewQuery(params.View).Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.addAuthHeader(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			var entry api.LogEntryResponse
			if err := json.Unmarshal([]byte(data), &entry); err == nil {
				callback(entry)
			}
		}
	}
}

// StreamLogsChannel streams entries into a channel that is closed when the
// stream ends. Connection errors are returned before streaming starts.
func (c *Client) StreamLogsChannel(ctx context.Context, params domain.LogParams) (<-chan api.LogEntryResponse, error) {
	// Fail fast when the server is unreachable
	if _, err := c.GetStatus(); err != nil {
		return nil, err
	}

	ch := make(chan api.LogEntryResponse, 100)
	go func() {
		defer close(ch)
		_ = c.StreamLogs(ctx, params, func(entry api.LogEntryResponse) {
			select {
			case ch <- entry:
			case <-ctx.Done():
			}
		})
	}()
	return ch, nil
}

// viewQuery encodes a view specification as query parameters
func viewQuery(view domain.ViewSpec) url.Values {
	query := url.Values{}
	query.Set("info", strconv.FormatBool(view.ShowInfo))
	query.Set("warning", strconv.FormatBool(view.ShowWarning))
	query.Set("error", strconv.FormatBool(view.ShowError))
	query.Set("collapse", strconv.FormatBool(view.Collapse))
	if view.SearchText != "" {
		query.Set("search", view.SearchText)
	}
	return query
}

func (c *Client) get(path string, v interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) post(path string, body, v interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v interface{}) error {
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeError converts an error response into an error
func decodeError(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

// addAuthHeader adds the Authorization header if a token is available
func (c *Client) addAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
