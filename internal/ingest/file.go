package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
)

// FileConfig describes a saved or live log file source
type FileConfig struct {
	Pattern string // path or doublestar glob
	Follow  bool
	Dialect parser.Dialect
}

// LogFileIngestor reads editor or player log files through the
// reassembler. In follow mode it keeps reading appended lines.
type LogFileIngestor struct {
	config FileConfig
	sink   Sink
	state  *lifecycle
	name   string

	ops    sync.Mutex // serializes Start and Stop
	cancel context.CancelFunc
	done   chan struct{}
}

type trackedFile struct {
	path    string
	file    *os.File // nil while the file is gone
	partial string   // trailing text without a newline yet
	reasm   *parser.Reassembler
}

// NewLogFileIngestor creates a file ingestor
func NewLogFileIngestor(config FileConfig, sink Sink) *LogFileIngestor {
	if config.Dialect == nil {
		config.Dialect = parser.PlainDialect{}
	}
	name := "file:" + config.Pattern
	return &LogFileIngestor{
		config: config,
		sink:   sink,
		name:   name,
		state:  newLifecycle(name, domain.OriginLogFile),
	}
}

// Name returns the source name
func (f *LogFileIngestor) Name() string { return f.name }

// Origin returns the origin stamped on entries
func (f *LogFileIngestor) Origin() domain.Origin { return domain.OriginLogFile }

// Status returns the source status
func (f *LogFileIngestor) Status() domain.SourceStatus {
	return f.state.snapshot()
}

// Start reads every matching file. Without follow the source stops by
// itself once the files are read.
//
// In follow mode the parent directories are watched, so a file that is
// truncated, rewritten from the top, removed or replaced keeps being
// followed from the start of its new content.
func (f *LogFileIngestor) Start(ctx context.Context) error {
	f.ops.Lock()
	defer f.ops.Unlock()

	paths, err := doublestar.FilepathGlob(f.config.Pattern)
	if err != nil {
		return fmt.Errorf("invalid file pattern %q: %w", f.config.Pattern, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no files match %q", domain.ErrSourceNotFound, f.config.Pattern)
	}

	if err := f.state.begin(); err != nil {
		return err
	}

	var watcher *fsnotify.Watcher
	if f.config.Follow {
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			err = fmt.Errorf("failed to create watcher: %w", err)
			f.state.end(err)
			return err
		}
	}

	files := make(map[string]*trackedFile, len(paths))
	watched := make(map[string]bool)
	for _, p := range paths {
		abs, _ := filepath.Abs(p)
		fh, err := os.Open(abs)
		if err != nil {
			log.Printf("file: cannot open %s: %v", abs, err)
			continue
		}
		files[abs] = &trackedFile{
			path:  abs,
			file:  fh,
			reasm: parser.NewReassembler(f.config.Dialect, domain.OriginLogFile),
		}
		if dir := filepath.Dir(abs); watcher != nil && !watched[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Printf("file: cannot watch %s: %v", dir, err)
			}
			watched[dir] = true
		}
	}
	if len(files) == 0 {
		if watcher != nil {
			_ = watcher.Close()
		}
		err := fmt.Errorf("%w: no readable files match %q", domain.ErrSourceNotFound, f.config.Pattern)
		f.state.end(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx, files, watcher, f.done)
	return nil
}

// Stop stops following and flushes pending records
func (f *LogFileIngestor) Stop() error {
	f.ops.Lock()
	defer f.ops.Unlock()

	if f.cancel == nil || !f.state.running() {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotRunning, f.name)
	}
	f.cancel()
	<-f.done
	return nil
}

// Wait blocks until the source has stopped
func (f *LogFileIngestor) Wait() {
	f.ops.Lock()
	done := f.done
	f.ops.Unlock()
	if done != nil {
		<-done
	}
}

func (f *LogFileIngestor) run(ctx context.Context, files map[string]*trackedFile, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer func() {
		for _, tf := range files {
			f.release(tf)
		}
		if watcher != nil {
			_ = watcher.Close()
		}
		f.state.end(nil)
	}()

	for _, tf := range files {
		f.readNew(tf, watcher == nil)
	}
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			// The directory watch reports every file in it
			tf, tracked := files[ev.Name]
			if !tracked {
				continue
			}
			f.handleEvent(tf, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("file: watcher error: %v", err)
		}
	}
}

func (f *LogFileIngestor) handleEvent(tf *trackedFile, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		// Written anew or renamed over the old file
		f.release(tf)
		f.reopen(tf)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		f.release(tf)
		log.Printf("file: %s went away, waiting for it to return", tf.path)
	case ev.Has(fsnotify.Write):
		if tf.file == nil {
			f.reopen(tf)
			return
		}
		if f.truncated(tf) {
			log.Printf("file: %s was truncated, reading from the start", tf.path)
			f.finish(tf)
			if _, err := tf.file.Seek(0, io.SeekStart); err != nil {
				log.Printf("file: cannot rewind %s: %v", tf.path, err)
				return
			}
		}
		f.readNew(tf, false)
	}
}

// truncated reports whether the file is now shorter than what was read
func (f *LogFileIngestor) truncated(tf *trackedFile) bool {
	info, err := tf.file.Stat()
	if err != nil {
		return false
	}
	offset, err := tf.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	return info.Size() < offset
}

// reopen starts reading a file that reappeared from its beginning
func (f *LogFileIngestor) reopen(tf *trackedFile) {
	fh, err := os.Open(tf.path)
	if err != nil {
		return
	}
	tf.file = fh
	f.readNew(tf, false)
}

// finish submits everything buffered for the current content of a file
func (f *LogFileIngestor) finish(tf *trackedFile) {
	if tf.partial != "" {
		f.feed(tf, strings.TrimRight(tf.partial, "\r"))
		tf.partial = ""
	}
	if e, ok := tf.reasm.Flush(); ok {
		f.submit(e)
	}
}

// release reads what is left, flushes and closes the file. The file
// stays tracked so it can be reopened.
func (f *LogFileIngestor) release(tf *trackedFile) {
	if tf.file == nil {
		return
	}
	f.readNew(tf, true)
	f.finish(tf)
	_ = tf.file.Close()
	tf.file = nil
}

// readNew reads from the current offset to EOF. A trailing line without a
// newline is held back until more data arrives unless final is set.
func (f *LogFileIngestor) readNew(tf *trackedFile, final bool) {
	r := bufio.NewReaderSize(tf.file, constants.ScannerBufferSize)
	for {
		chunk, err := r.ReadString('\n')
		if err == nil {
			f.feed(tf, strings.TrimRight(tf.partial+chunk, "\r\n"))
			tf.partial = ""
			continue
		}

		tf.partial += chunk
		if err != io.EOF {
			log.Printf("file: read error on %s: %v", tf.path, err)
		}
		break
	}

	if final && tf.partial != "" {
		f.feed(tf, strings.TrimRight(tf.partial, "\r"))
		tf.partial = ""
	}
}

func (f *LogFileIngestor) feed(tf *trackedFile, line string) {
	if e, ok := tf.reasm.Feed(line); ok {
		f.submit(e)
	}
}

func (f *LogFileIngestor) submit(entry domain.LogEntry) {
	if err := f.sink.Submit(entry); err != nil {
		log.Printf("file: dropped entry: %v", err)
		return
	}
	f.state.count()
}
