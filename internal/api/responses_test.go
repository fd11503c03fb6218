package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/navigation"
	"github.com/charliek/devlog/internal/session"
)

func TestToLogEntryResponse(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	entry := domain.LogEntry{
		Seq:          7,
		Timestamp:    ts,
		Severity:     domain.SeverityException,
		Message:      "NullReferenceException",
		ExtraMessage: "Rethrow as GameException",
		Frames: []domain.StackFrame{
			{Raw: "Player:Update () (at Assets/Player.cs:3)", Method: "Player:Update ()", FilePath: "Assets/Player.cs", Line: 3},
		},
		Origin:    domain.OriginDeviceForward,
		Transient: true,
	}

	resp := ToLogEntryResponse(entry)

	assert.Equal(t, uint64(7), resp.Seq)
	assert.Equal(t, "2024-03-01T12:30:45.123456789Z", resp.Timestamp)
	assert.Equal(t, "exception", resp.Severity)
	assert.Equal(t, "NullReferenceException", resp.Message)
	assert.Equal(t, "Rethrow as GameException", resp.ExtraMessage)
	assert.Equal(t, "device_forward", resp.Origin)
	assert.True(t, resp.Transient)
	require.Len(t, resp.Frames, 1)
	assert.Equal(t, FrameResponse{
		Raw:    "Player:Update () (at Assets/Player.cs:3)",
		Method: "Player:Update ()",
		File:   "Assets/Player.cs",
		Line:   3,
	}, resp.Frames[0])
}

func TestToLogEntryResponse_NoFrames(t *testing.T) {
	resp := ToLogEntryResponse(domain.LogEntry{Severity: domain.SeverityInfo, Origin: domain.OriginLogFile})
	assert.Nil(t, resp.Frames)
}

func TestToLogDetailResponse(t *testing.T) {
	entry := domain.LogEntry{
		Seq:      3,
		Severity: domain.SeverityError,
		Message:  "boom",
		Origin:   domain.OriginInProcess,
		Frames: []domain.StackFrame{
			{Raw: "UnityEngine.Debug:LogError(Object)"},
			{Raw: "A:B () (at Assets/A.cs:1)", FilePath: "Assets/A.cs", Line: 1, SourceExcerpt: "> 1 | x"},
		},
	}
	detail := session.EntryDetail{
		Entry: entry,
		Count: 4,
		Frames: []session.FrameDetail{
			{StackFrame: entry.Frames[0]},
			{StackFrame: entry.Frames[1], Location: navigation.Location{Path: "/proj/Assets/A.cs", Line: 1, Available: true}},
		},
	}

	resp := ToLogDetailResponse(detail)

	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, entry.Fingerprint(), resp.Fingerprint)
	require.Len(t, resp.Frames, 2)
	assert.False(t, resp.Frames[0].Available)
	assert.Empty(t, resp.Frames[0].LocalPath)
	assert.True(t, resp.Frames[1].Available)
	assert.Equal(t, "/proj/Assets/A.cs", resp.Frames[1].LocalPath)
	assert.Equal(t, "> 1 | x", resp.Frames[1].SourceExcerpt)
}

func TestToSourceResponse(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		resp := ToSourceResponse(domain.SourceStatus{
			Name:      "socket",
			Origin:    domain.OriginDeviceForward,
			State:     domain.SourceStateRunning,
			Entries:   12,
			StartedAt: time.Now().Add(-90 * time.Second),
		})
		assert.Equal(t, "socket", resp.Name)
		assert.Equal(t, "device_forward", resp.Origin)
		assert.Equal(t, "running", resp.State)
		assert.Equal(t, int64(12), resp.Entries)
		assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(89))
	})

	t.Run("stopped with error", func(t *testing.T) {
		resp := ToSourceResponse(domain.SourceStatus{
			Name:      "logcat",
			State:     domain.SourceStateStopped,
			StartedAt: time.Now().Add(-time.Minute),
			LastError: "capture exited",
		})
		assert.Zero(t, resp.UptimeSeconds)
		assert.Equal(t, "capture exited", resp.LastError)
	})
}

func TestToProcessResponse(t *testing.T) {
	resp := ToProcessResponse(domain.ProcessInfo{
		Name:      "logcat",
		State:     domain.ProcessStateCrashed,
		PID:       4242,
		StartedAt: time.Now().Add(-time.Minute),
		ExitCode:  1,
		Cmd:       "adb logcat -v threadtime",
	})

	assert.Equal(t, "logcat", resp.Name)
	assert.Equal(t, "crashed", resp.Status)
	assert.Equal(t, 4242, resp.PID)
	assert.Zero(t, resp.UptimeSeconds)
	assert.Equal(t, 1, resp.ExitCode)
	assert.Equal(t, "adb logcat -v threadtime", resp.Cmd)
}
