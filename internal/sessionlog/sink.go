// Package sessionlog records per-request OCR workflow logs.
//
// Records are JSON lines appended to a per-day file under the log directory
// and mirrored to the console. Writes never fail the caller.
package sessionlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level is the severity tag of a session record.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelDebug   Level = "DEBUG"
	LevelStep    Level = "STEP"
	LevelSuccess Level = "SUCCESS"
	LevelError   Level = "ERROR"
)

const dayLayout = "2006-01-02"

// Sink is the shared, append-only destination for all sessions.
type Sink struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	day     string
	file    *os.File
	fileLog zerolog.Logger
	console zerolog.Logger
	// consoleLevel filters the console mirror only. The file keeps every record.
	consoleLevel zerolog.Level
}

// NewSink creates a sink writing under dir. console may be nil to disable the mirror.
func NewSink(dir string, console io.Writer) *Sink {
	s := &Sink{
		dir:     dir,
		now:     time.Now,
		fileLog:      zerolog.Nop(),
		console:      zerolog.Nop(),
		consoleLevel: zerolog.DebugLevel,
	}
	if console != nil {
		cw := zerolog.ConsoleWriter{
			Out:        console,
			NoColor:    true,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i any) string {
				return fmt.Sprintf("%-7v", i)
			},
		}
		s.console = zerolog.New(cw).With().Timestamp().Logger()
	}
	return s
}

// SetConsoleLevel sets the lowest level mirrored to the console, using
// zerolog level names ("debug", "info", "warn", "error").
func (s *Sink) SetConsoleLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.DebugLevel
	}
	s.mu.Lock()
	s.consoleLevel = lvl
	s.mu.Unlock()
	return nil
}

// severity maps a session level onto zerolog's ordering.
func (l Level) severity() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewSession starts a session with a fresh 8-character id.
func (s *Sink) NewSession() *Session {
	sess := &Session{sink: s, id: uuid.New().String()[:8]}
	sess.Log(LevelInfo, "OCR session started", map[string]any{"startTime": s.now().UTC().Format(time.RFC3339Nano)})
	return sess
}

// Dir returns the log directory.
func (s *Sink) Dir() string {
	return s.dir
}

// PathFor returns the log file path for the given day.
func (s *Sink) PathFor(day time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("ocr-%s.log", day.Format(dayLayout)))
}

func (s *Sink) write(sessionID string, level Level, message string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.rotate(now)

	s.fileLog.Log().
		Str("timestamp", now.UTC().Format(time.RFC3339Nano)).
		Str("sessionId", sessionID).
		Str("level", string(level)).
		Interface("data", data).
		Msg(message)

	if level.severity() < s.consoleLevel {
		return
	}
	ev := s.console.Log().Str("level", string(level)).Str("session", sessionID)
	if data != nil {
		ev = ev.Interface("data", data)
	}
	ev.Msg(message)
}

// rotate opens the file for now's day if it is not already open.
// On failure file output is dropped until the next day.
func (s *Sink) rotate(now time.Time) {
	day := now.Format(dayLayout)
	if day == s.day {
		return
	}
	s.day = day
	s.closeFile()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.fileLog = zerolog.Nop()
		return
	}
	f, err := os.OpenFile(s.PathFor(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.fileLog = zerolog.Nop()
		return
	}
	s.file = f
	s.fileLog = zerolog.New(f)
}

func (s *Sink) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// Close closes the current day's file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFile()
	s.day = ""
	s.fileLog = zerolog.Nop()
	return nil
}
