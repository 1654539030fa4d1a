package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin zerolog wrapper. Warnings and errors can additionally be
// aggregated by a LogCollector and shipped elsewhere.
type Logger struct {
	zl zerolog.Logger

	mu        *sync.RWMutex
	collector **LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()

	return newLogger(zl), nil
}

func openOutput(out string) (io.Writer, error) {
	switch out {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	return f, nil
}

func newLogger(zl zerolog.Logger) *Logger {
	var c *LogCollector
	return &Logger{zl: zl, mu: &sync.RWMutex{}, collector: &c}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return newLogger(zerolog.Nop())
}

// With returns a child logger carrying the given fields on every event.
// Children share the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: ctx.Logger(), mu: l.mu, collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(l.zl.Debug(), "", msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.log(l.zl.Info(), "", msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.log(l.zl.Warn(), "warn", msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) { l.log(l.zl.Error(), "error", msg, fields) }

func (l *Logger) log(event *zerolog.Event, collectAs, msg string, fields []Field) {
	if event != nil {
		for _, f := range fields {
			f.add(event)
		}
		event.Msg(msg)
	}
	if collectAs != "" {
		l.collect(collectAs, msg, fields)
	}
}

func (l *Logger) collect(level, msg string, fields []Field) {
	l.mu.RLock()
	c := *l.collector
	l.mu.RUnlock()
	if c == nil || !c.accepts(level) {
		return
	}

	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	c.AddLog(level, msg, m, callerSite(4))
}

// callerSite reports file:line relative to the module root.
func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	if i := strings.Index(file, "/Kavach/"); i >= 0 {
		file = file[i+len("/Kavach/"):]
	} else {
		file = filepath.Base(file)
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// AddCollector starts aggregating warnings and errors, replacing any
// previous collector.
func (l *Logger) AddCollector(config *CollectionConfig) {
	next := NewLogCollector(config)
	l.mu.Lock()
	prev := *l.collector
	*l.collector = next
	l.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	l.mu.Lock()
	prev := *l.collector
	*l.collector = nil
	l.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
	add   func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field {
	return Int(key, int(d/time.Millisecond))
}

func Error(err error) Field {
	var v interface{}
	if err != nil {
		v = err.Error()
	}
	return Field{Key: "error", Value: v, add: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Interface(key, value) }}
}
