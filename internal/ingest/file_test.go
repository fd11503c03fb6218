package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorLog = `Loading scene
Error: shader failed to compile
UnityEngine.Debug:LogError(Object)
Shaders:Build () (at Assets/Shaders/Build.cs:88)

NullReferenceException: Object reference not set
  at Game.Player.Update () [0x00012] in /Users/dev/Game/Assets/Scripts/Player.cs:31
Warning: low memory`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLogFileIngestor_ReadsSavedLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Editor.log")
	writeFile(t, path, editorLog)

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path}, sink)
	require.NoError(t, f.Start(context.Background()))
	f.Wait()

	got := sink.all()
	require.Len(t, got, 3)

	assert.Equal(t, domain.SeverityError, got[0].Severity)
	assert.Equal(t, domain.OriginLogFile, got[0].Origin)
	require.Len(t, got[0].Frames, 2)
	assert.Equal(t, "Assets/Shaders/Build.cs", got[0].Frames[1].FilePath)

	assert.Equal(t, domain.SeverityException, got[1].Severity)
	require.Len(t, got[1].Frames, 1)
	assert.Equal(t, 31, got[1].Frames[0].Line)

	// final line has no newline and is still read
	assert.Equal(t, domain.SeverityWarning, got[2].Severity)

	status := f.Status()
	assert.Equal(t, domain.SourceStateStopped, status.State)
	assert.Equal(t, int64(3), status.Entries)
	assert.Equal(t, "file:"+path, f.Name())
}

func TestLogFileIngestor_Glob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0755))
	writeFile(t, filepath.Join(dir, "a", "one.log"), "Error: one\n")
	writeFile(t, filepath.Join(dir, "a", "b", "two.log"), "Warning: two\n")
	writeFile(t, filepath.Join(dir, "a", "skip.txt"), "Error: skipped\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: filepath.Join(dir, "**", "*.log")}, sink)
	require.NoError(t, f.Start(context.Background()))
	f.Wait()

	var messages []string
	for _, e := range sink.all() {
		messages = append(messages, e.Message)
	}
	assert.ElementsMatch(t, []string{"one", "two"}, messages)
}

func TestLogFileIngestor_NoMatch(t *testing.T) {
	f := NewLogFileIngestor(FileConfig{Pattern: filepath.Join(t.TempDir(), "missing.log")}, &collector{})

	err := f.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
	assert.Equal(t, domain.SourceStateIdle, f.Status().State)
	assert.ErrorIs(t, f.Stop(), domain.ErrSourceNotRunning)
}

func TestLogFileIngestor_LogcatDialect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.txt")
	writeFile(t, path, "10-17 12:00:00.100  4321  4345 E Unity   : boom\n"+
		"10-17 12:00:00.101  4321  4345 E Unity   : Game:Tick () (at Assets/Game.cs:7)\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path, Dialect: parser.LogcatDialect{}}, sink)
	require.NoError(t, f.Start(context.Background()))
	f.Wait()

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
	require.Len(t, got[0].Frames, 1)
}

func TestLogFileIngestor_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Player.log")
	writeFile(t, path, "Error: first\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path, Follow: true}, sink)
	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, domain.SourceStateRunning, f.Status().State)

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer fh.Close()

	// a new record start completes the first one
	_, err = fh.WriteString("Warning: second\nError: thi")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sink.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = fh.WriteString("rd\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.Stop())
	assert.Equal(t, domain.SourceStateStopped, f.Status().State)

	got := sink.all()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, "third", got[2].Message, "partial line joined across writes")
}

func messages(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestLogFileIngestor_FollowsRewrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Editor.log")
	writeFile(t, path, "Error: a long first record from the previous editor run\nWarning: another old line here\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path, Follow: true}, sink)
	require.NoError(t, f.Start(context.Background()))
	assert.Eventually(t, func() bool { return sink.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The editor starts over from an empty file
	writeFile(t, path, "Error: new1\nError: new2\n")
	assert.Eventually(t, func() bool { return sink.len() == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.Stop())
	assert.Equal(t, []string{
		"a long first record from the previous editor run",
		"another old line here",
		"new1",
		"new2",
	}, messages(sink.all()))
}

func TestLogFileIngestor_FollowsRecreatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Player.log")
	writeFile(t, path, "Error: before\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path, Follow: true}, sink)
	require.NoError(t, f.Start(context.Background()))

	require.NoError(t, os.Remove(path))
	// Removal flushes the pending record
	assert.Eventually(t, func() bool { return sink.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SourceStateRunning, f.Status().State)

	writeFile(t, path, "Error: after\nWarning: next\n")
	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.Stop())
	assert.Equal(t, []string{"before", "after", "next"}, messages(sink.all()))
}

func TestLogFileIngestor_FollowsReplacedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")
	writeFile(t, path, "Error: old run\n")

	sink := &collector{}
	f := NewLogFileIngestor(FileConfig{Pattern: path, Follow: true}, sink)
	require.NoError(t, f.Start(context.Background()))

	// Renamed over the followed file, as atomic writers do
	next := filepath.Join(dir, "Player.log.tmp")
	writeFile(t, next, "Error: new run\nWarning: done\n")
	require.NoError(t, os.Rename(next, path))

	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.Stop())
	assert.Equal(t, []string{"old run", "new run", "done"}, messages(sink.all()))
}
