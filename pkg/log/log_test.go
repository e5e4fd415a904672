package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func newTestLogger() (*Logger, *bytes.Buffer, *bytes.Buffer) {
	console := &bytes.Buffer{}
	structured := &bytes.Buffer{}
	return New(console, zerolog.New(structured)), console, structured
}

func TestArtifactLines(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name        string
		op          func(l *Logger)
		wantConsole string
		wantJSON    string
	}{
		{
			name:        "uploaded",
			op:          func(l *Logger) { l.Uploaded("Animals/Cat", "page") },
			wantConsole: "✓ Animals/Cat",
			wantJSON:    `"message":"uploaded"`,
		},
		{
			name:        "skipped",
			op:          func(l *Logger) { l.Skipped("Animals/photo.jpg", "file") },
			wantConsole: "- Animals/photo.jpg",
			wantJSON:    `"message":"unchanged"`,
		},
		{
			name:        "would_upload",
			op:          func(l *Logger) { l.WouldUpload("Animals/Cat", "page") },
			wantConsole: "⟳ Animals/Cat",
			wantJSON:    `"message":"would upload"`,
		},
		{
			name:        "failed",
			op:          func(l *Logger) { l.Failed("Animals/Cat", "page", errors.New("boom")) },
			wantConsole: "✗ Animals/Cat",
			wantJSON:    `"message":"failed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, console, structured := newTestLogger()
			tt.op(logger)
			assert.Contains(t, console.String(), tt.wantConsole)
			assert.Contains(t, structured.String(), tt.wantJSON)
		})
	}
}

func TestHeaderAndOutcomeMessages(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	logger, console, _ := newTestLogger()
	logger.Header("syncing ./site")
	logger.Success("sync complete")
	logger.Warningf("completed with %d errors", 2)
	logger.Error("sync failed")

	out := console.String()
	assert.Contains(t, out, "wikisync")
	assert.Contains(t, out, "syncing ./site")
	assert.Contains(t, out, "✅ sync complete")
	assert.Contains(t, out, "completed with 2 errors")
	assert.Contains(t, out, "❌ sync failed")
}

func TestSummaryRendersAllRows(t *testing.T) {
	logger, console, _ := newTestLogger()
	logger.Summary([][]string{
		{"", "found", "uploaded", "skipped", "errors"},
		{"pages", "3", "2", "1", "0"},
		{"files", "1", "0", "1", "0"},
	})

	out := console.String()
	assert.Contains(t, out, "pages")
	assert.Contains(t, out, "files")
	assert.Contains(t, out, "uploaded")
}

func TestContextRoundTrip(t *testing.T) {
	logger, _, _ := newTestLogger()
	ctx := NewContext(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
}

func TestFromContextFallsBackToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Must not panic or write anywhere visible.
	logger.Uploaded("Animals/Cat", "page")
	logger.Header("quiet")
}

func TestArtifactLineAlignment(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	logger, console, _ := newTestLogger()
	logger.Uploaded("Animals/Cat", "page")
	logger.Skipped("Plants/Rose", "page")

	lines := strings.Split(strings.TrimRight(console.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	// The status symbols differ in byte length, so compare rune columns.
	assert.Equal(t, runeIndex(lines[0], "page"), runeIndex(lines[1], "page"),
		"kind column should align across lines")
}

func runeIndex(s, substr string) int {
	i := strings.Index(s, substr)
	if i < 0 {
		return -1
	}
	return len([]rune(s[:i]))
}
