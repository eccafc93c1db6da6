// Package logger provides the leveled, field-aware logger used across rosie.
// Messages and string fields are passed through secret masking before they
// are written.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config value ("debug", "info", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger writes one line per entry: timestamp, level, [prefix], message, fields.
type Logger struct {
	core   *core
	prefix string
	fields map[string]interface{}
}

// core is shared between a logger and every logger derived from it.
type core struct {
	mu        sync.Mutex
	level     Level
	output    io.Writer
	maskFuncs []MaskFunc
}

// MaskFunc is a function that masks sensitive data
type MaskFunc func(string) string

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(x-api-token[=:]\s*["']?[a-zA-Z0-9._-]{8,}["']?)`),
	regexp.MustCompile(`(?i)(api[_-]?key[=:]\s*["']?[a-zA-Z0-9_-]{16,}["']?)`),
	regexp.MustCompile(`(?i)(token[=:]\s*["']?[a-zA-Z0-9._-]{20,}["']?)`),
	regexp.MustCompile(`(?i)(Bearer\s+[a-zA-Z0-9._-]+)`),
	regexp.MustCompile(`(?i)(secret[=:]\s*["']?[a-zA-Z0-9_-]{16,}["']?)`),
}

var sensitiveFieldNames = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"api_token":     true,
	"token":         true,
	"secret":        true,
	"password":      true,
	"authorization": true,
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process logger, writing INFO and above to stderr.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(LevelInfo, os.Stderr)
	})
	return defaultLogger
}

// New creates a new logger
func New(level Level, output io.Writer) *Logger {
	c := &core{level: level, output: output}
	c.maskFuncs = []MaskFunc{maskPatterns}
	return &Logger{core: c, fields: map[string]interface{}{}}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return New(LevelError+1, io.Discard)
}

// SetLevel sets the logging level for this logger and everything derived from it.
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.output = w
}

// AddMaskFunc adds a custom masking function
func (l *Logger) AddMaskFunc(fn MaskFunc) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.maskFuncs = append(l.core.maskFuncs, fn)
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{core: l.core, prefix: l.prefix, fields: merged}
}

// WithPrefix returns a new logger with the prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{core: l.core, prefix: prefix, fields: l.fields}
}

func maskPatterns(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllStringFunc(s, maskString)
	}
	return s
}

// maskString keeps the first and last 4 chars
func maskString(s string) string {
	if len(s) <= 8 {
		return "***MASKED***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

func (c *core) mask(s string) string {
	for _, fn := range c.maskFuncs {
		s = fn(s)
	}
	return s
}

func (c *core) maskValue(key string, value interface{}) interface{} {
	if sensitiveFieldNames[strings.ToLower(key)] {
		if str, ok := value.(string); ok {
			return maskString(str)
		}
		return "***MASKED***"
	}
	if str, ok := value.(string); ok {
		return c.mask(str)
	}
	return value
}

func (l *Logger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.core.maskValue(k, l.fields[k]))
	}
	return sb.String()
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if level < l.core.level {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	msg = l.core.mask(msg)

	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}

	fmt.Fprintf(l.core.output, "%s %s %s%s%s\n",
		time.Now().Format("2006-01-02T15:04:05.000Z07:00"), level, prefix, msg, l.formatFields())
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return level >= l.core.level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Package-level helpers on the default logger.

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }

// SetLevel sets the level of the default logger
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetOutput sets the output of the default logger
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// MaskSecrets masks all known secret patterns in a string
func MaskSecrets(s string) string {
	return Default().core.mask(s)
}

// IsSensitiveKey checks if a key name is sensitive
func IsSensitiveKey(key string) bool {
	return sensitiveFieldNames[strings.ToLower(key)]
}
