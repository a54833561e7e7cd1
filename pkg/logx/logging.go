package logx

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const (
	timeFormat = "2006-01-02T15:04:05.000Z07:00"
	errorKey   = "err"

	// emit <- Info/Warn/... <- caller
	callerSkip = 2
)

// Logger writes structured events through zerolog.
//
// A Logger obtained from a Service follows every Service.Apply, so
// component loggers built once at startup pick up level and sink changes.
// The zero value discards everything.
type Logger struct {
	svc   *Service
	zl    *zerolog.Logger
	fixed []Field
}

// Nop returns an explicit discarding logger.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{zl: &zl}
}

// NewConsole builds a stderr logger that does not depend on a Service.
func NewConsole(level string) Logger {
	setGlobals()
	zl := consoleLogger(os.Stderr, levelOr(level, zerolog.InfoLevel))
	return Logger{zl: &zl}
}

// New adopts an existing zerolog logger.
func New(zl zerolog.Logger) Logger { return Logger{zl: &zl} }

func (l Logger) IsZero() bool { return l.svc == nil && l.zl == nil && l.fixed == nil }

func (l Logger) target() *zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.load()
	case l.zl != nil:
		return l.zl
	}
	return nil
}

func (l Logger) Enabled(level Level) bool {
	zl := l.target()
	return zl != nil && zl.GetLevel() <= level
}

// With returns a copy that stamps fields on every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) > 0 {
		merged := make([]Field, 0, len(l.fixed)+len(fields))
		l.fixed = append(append(merged, l.fixed...), fields...)
	}
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.target()
	if zl == nil {
		return
	}
	ev := zl.WithLevel(level)
	if ev == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(callerSkip); ok {
		ev.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	apply(ev, l.fixed)
	apply(ev, fields)
	ev.Msg(msg)
}
