// Package navigation maps stack frames to files in the local project and
// renders short source excerpts around the reported line.
package navigation

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// projectRoot is the directory every project-relative frame path starts with
const projectRoot = "Assets/"

// FileReader reads a source file as lines
type FileReader interface {
	ReadLines(path string) ([]string, error)
}

// OSFileReader reads from the local filesystem
type OSFileReader struct{}

// ReadLines implements FileReader
func (OSFileReader) ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// Location is where a frame points on this machine
type Location struct {
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line"`
	Available bool   `json:"available"`
}

// Resolver resolves frames against a project directory. File contents and
// rendered excerpts are memoized until Reset.
type Resolver struct {
	projectDir string
	reader     FileReader

	mu       sync.Mutex
	files    map[string]fileResult
	excerpts map[string]Excerpt
}

type fileResult struct {
	lines []string
	err   error
}

// NewResolver creates a resolver. A nil reader reads from disk.
func NewResolver(projectDir string, reader FileReader) *Resolver {
	if reader == nil {
		reader = OSFileReader{}
	}
	if projectDir != "" {
		if abs, err := filepath.Abs(projectDir); err == nil {
			projectDir = abs
		}
	}
	return &Resolver{
		projectDir: projectDir,
		reader:     reader,
		files:      make(map[string]fileResult),
		excerpts:   make(map[string]Excerpt),
	}
}

// ProjectDir returns the directory project paths are rooted at
func (r *Resolver) ProjectDir() string {
	return r.projectDir
}

// NormalizePath converts separators to '/'
func NormalizePath(path string) string {
	return strings.ReplaceAll(strings.TrimSpace(path), `\`, "/")
}

// ProjectPath trims path to its Assets/ subtree. It returns "" when the
// path is not inside a project.
func ProjectPath(path string) string {
	path = NormalizePath(path)
	if strings.HasPrefix(path, projectRoot) {
		return path
	}
	if i := strings.Index(path, "/"+projectRoot); i >= 0 {
		return path[i+1:]
	}
	return ""
}

// SystemPath converts a frame path to a local file path. Project relative
// paths are rooted at the project directory.
func (r *Resolver) SystemPath(path string) string {
	path = NormalizePath(path)
	if strings.HasPrefix(path, projectRoot) && r.projectDir != "" {
		return filepath.Join(r.projectDir, filepath.FromSlash(path))
	}
	return filepath.FromSlash(path)
}

// candidates lists the local paths tried for a frame path, in order
func (r *Resolver) candidates(path string) []string {
	out := []string{r.SystemPath(path)}
	if rel := ProjectPath(path); rel != "" && rel != NormalizePath(path) && r.projectDir != "" {
		out = append(out, r.SystemPath(rel))
	}
	return out
}

// Locate resolves a frame to a readable local file. Unresolvable frames
// and missing files give a Location with Available false.
func (r *Resolver) Locate(frame domain.StackFrame) Location {
	loc := Location{Line: frame.Line}
	if !frame.Resolvable() {
		return loc
	}

	for _, p := range r.candidates(frame.FilePath) {
		lines, err := r.lines(p)
		if err != nil {
			continue
		}
		loc.Path = p
		loc.Available = frame.Line <= len(lines)
		return loc
	}
	loc.Path = r.SystemPath(frame.FilePath)
	return loc
}

// Excerpt returns the source around the frame's line. The second result
// is false when the location is unavailable.
func (r *Resolver) Excerpt(frame domain.StackFrame) (Excerpt, bool) {
	loc := r.Locate(frame)
	if !loc.Available {
		return Excerpt{}, false
	}

	key := loc.Path + ":" + strconv.Itoa(loc.Line)
	r.mu.Lock()
	if ex, ok := r.excerpts[key]; ok {
		r.mu.Unlock()
		return ex, true
	}
	r.mu.Unlock()

	lines, err := r.lines(loc.Path)
	if err != nil {
		return Excerpt{}, false
	}
	ex := buildExcerpt(lines, loc.Line, constants.ExcerptContextLines)
	ex.Path = loc.Path

	r.mu.Lock()
	r.excerpts[key] = ex
	r.mu.Unlock()
	return ex, true
}

// Annotate fills SourceExcerpt on every frame of entry that resolves
func (r *Resolver) Annotate(entry *domain.LogEntry) {
	for i := range entry.Frames {
		if entry.Frames[i].SourceExcerpt != "" {
			continue
		}
		if ex, ok := r.Excerpt(entry.Frames[i]); ok {
			entry.Frames[i].SourceExcerpt = ex.String()
		}
	}
}

// Reset drops cached files and excerpts
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = make(map[string]fileResult)
	r.excerpts = make(map[string]Excerpt)
}

func (r *Resolver) lines(path string) ([]string, error) {
	r.mu.Lock()
	res, ok := r.files[path]
	r.mu.Unlock()
	if ok {
		return res.lines, res.err
	}

	lines, err := r.reader.ReadLines(path)
	r.mu.Lock()
	r.files[path] = fileResult{lines: lines, err: err}
	r.mu.Unlock()
	return lines, err
}
