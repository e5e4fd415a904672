package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	lineIndent  = 4  // spaces to indent artifact entries
	nameWidth   = 35 // base width for artifact name
	kindWidth   = 8  // width for artifact kind (page/file)
	statusWidth = 12 // width for status text
)

// 🎯 Logger renders per-artifact status lines to the console and mirrors
// everything into zerolog.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
}

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// FromContext gets the logger from context, falling back to a discarding
// logger so library code never has to nil-check.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		return New(io.Discard, zerolog.Nop())
	}
	return logger
}

// NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatArtifactLine formats one artifact outcome for display
func formatArtifactLine(symbol, name, kind, status string) string {
	return fmt.Sprintf("%*s%s %-*s %-*s %-*s",
		lineIndent, "",
		symbol,
		nameWidth, name,
		kindWidth, kind,
		statusWidth, status,
	)
}

// Uploaded logs a successful upload of an artifact.
func (l *Logger) Uploaded(name, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, formatArtifactLine(color.GreenString("✓"), name, kind, "uploaded"))
	l.zlog.Info().Str("name", name).Str("kind", kind).Msg("uploaded")
}

// Skipped logs an artifact whose remote content already matches.
func (l *Logger) Skipped(name, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, formatArtifactLine(color.HiBlackString("-"), name, kind, "unchanged"))
	l.zlog.Info().Str("name", name).Str("kind", kind).Msg("unchanged")
}

// WouldUpload logs an artifact a dry run would have written.
func (l *Logger) WouldUpload(name, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, formatArtifactLine(color.YellowString("⟳"), name, kind, "would upload"))
	l.zlog.Info().Str("name", name).Str("kind", kind).Msg("would upload")
}

// Failed logs a per-artifact error.
func (l *Logger) Failed(name, kind string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, formatArtifactLine(color.RedString("✗"), name, kind, "failed"))
	l.zlog.Error().Str("name", name).Str("kind", kind).Err(err).Msg("failed")
}

// 📝 Header logs a phase header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	title := color.New(color.Bold, color.FgCyan).Sprint("wikisync")
	fmt.Fprintf(l.console, "\n%s %s\n\n", title, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📊 Summary renders the final counts table. The first row is the header.
func (l *Logger) Summary(rows [][]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := make(pterm.TableData, 0, len(rows))
	for _, row := range rows {
		data = append(data, row)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		// Fall back to plain rows rather than losing the summary.
		for _, row := range rows {
			fmt.Fprintln(l.console, row)
		}
		return
	}
	fmt.Fprintln(l.console, out)
}
