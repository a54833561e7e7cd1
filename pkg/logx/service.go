package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogPath = "./pushwatch.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the log sinks and lets them be swapped while loggers
// handed out earlier keep working.
type Service struct {
	mu   sync.Mutex
	file *os.File
	cur  atomic.Pointer[zerolog.Logger]
}

// NewService applies cfg and returns the service with its root logger.
// A log file that cannot be opened falls back to console output.
func NewService(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	if err := s.Apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "logx: %v\n", err)
	}
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) load() *zerolog.Logger {
	if zl := s.cur.Load(); zl != nil {
		return zl
	}
	nop := zerolog.Nop()
	return &nop
}

// Apply rebuilds the sinks from cfg. The previous log file is closed only
// after the new logger is installed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sinks   []io.Writer
		opened  *os.File
		openErr error
	)
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stderr))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		opened, openErr = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if openErr != nil {
			openErr = fmt.Errorf("open log file %q: %w", path, openErr)
		} else {
			sinks = append(sinks, zerolog.SyncWriter(opened))
		}
	}
	if len(sinks) == 0 {
		sinks = []io.Writer{consoleWriter(os.Stderr)}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(levelOr(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.cur.Store(&zl)

	prev := s.file
	s.file = opened
	if prev != nil {
		_ = prev.Close()
	}
	return openErr
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ValidLevel reports whether s is empty or names a known level.
func ValidLevel(s string) bool {
	_, ok := parseLevel(s)
	return ok || strings.TrimSpace(s) == ""
}

func parseLevel(s string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	switch name {
	case "trace", "debug", "info", "warn", "error":
		lvl, err := zerolog.ParseLevel(name)
		return lvl, err == nil
	}
	return zerolog.NoLevel, false
}

func levelOr(s string, def zerolog.Level) zerolog.Level {
	if lvl, ok := parseLevel(s); ok {
		return lvl
	}
	return def
}

func setGlobals() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = errorKey
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

func consoleLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(consoleWriter(w)).Level(lvl).With().Timestamp().Logger()
}
