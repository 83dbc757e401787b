package logger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const jobBufferSize = 100
const logSinkPathEnvVar = "MONGODB_LOG_PATH"
const maxDocumentLengthEnvVar = "MONGODB_LOG_MAX_DOCUMENT_LENGTH"

// DefaultMaxDocumentLength is the default maximum length of a stringified document in bytes.
const DefaultMaxDocumentLength = 1000

// TruncationSuffix is appended to a truncated value to signal to the reader that truncation occurred.
// It does not count toward the max document length.
const TruncationSuffix = "..."

// LogSink represents a logging implementation. It is specifically designed to be a subset of go-logr/logr's LogSink
// interface, so a host application's existing logr-compatible sink can be plugged straight in.
type LogSink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

type job struct {
	level Level
	msg   ComponentMessage
}

// Logger is the driver's logger. It is used to log messages from the driver either to os.Stderr or to a custom LogSink.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              LogSink
	MaxDocumentLength uint

	jobs     chan job
	closeOne sync.Once
}

// New constructs a new Logger. If sink is nil, the logger falls back to an os.Stderr sink.
//
// A level set in componentLevels takes precedence over the environment. Any component with no level set here is
// sourced from the environment.
func New(sink LogSink, maxDocumentLength uint, componentLevels map[Component]Level) *Logger {
	return &Logger{
		ComponentLevels: selectComponentLevels(
			func() map[Component]Level { return componentLevels },
			getEnvComponentLevels,
		),

		MaxDocumentLength: selectMaxDocumentLength(
			func() uint { return maxDocumentLength },
			getEnvMaxDocumentLength,
		),

		Sink: selectLogSink(
			func() LogSink { return sink },
			getEnvLogSink,
		),

		jobs: make(chan job, jobBufferSize),
	}
}

// Close stops the printer goroutine and releases the job channel. Safe to call more than once.
func (l *Logger) Close() {
	l.closeOne.Do(func() { close(l.jobs) })
}

// Is reports whether the given level is enabled for the given component.
func (l *Logger) Is(level Level, component Component) bool {
	return l.ComponentLevels[component] >= level
}

// Print enqueues msg for asynchronous delivery to the sink, never blocking the caller beyond a full
// buffer check: a full buffer drops the message and tries, also without blocking, to queue a DroppedMessage in its
// place; if no slot has freed up by then, the DroppedMessage is dropped too.
func (l *Logger) Print(level Level, msg ComponentMessage) {
	select {
	case l.jobs <- job{level, msg}:
	default:
		select {
		case l.jobs <- job{level, &DroppedMessage{Comp: msg.Component()}}:
		default:
		}
	}
}

// StartPrintListener starts the goroutine that drains l's job queue into its Sink. Exactly one should
// run per Logger.
func StartPrintListener(l *Logger) {
	go func() {
		for j := range l.jobs {
			if !l.Is(j.level, j.msg.Component()) {
				continue
			}
			sink := l.Sink
			if sink == nil {
				continue
			}
			kvs := formatKeysAndValues(j.msg.KeysAndValues(), l.MaxDocumentLength)
			sink.Info(int(j.level)-DiffToInfo, j.msg.Message(), kvs...)
		}
	}()
}

func truncate(str string, width uint) string {
	if width == 0 || len(str) <= int(width) {
		return str
	}

	newStr := str[:width]

	if newStr[len(newStr)-1]&0xC0 == 0xC0 {
		return newStr[:len(newStr)-1] + TruncationSuffix
	}

	if newStr[len(newStr)-1]&0xC0 == 0x80 {
		for i := len(newStr) - 1; i >= 0; i-- {
			if newStr[i]&0xC0 == 0xC0 {
				return newStr[:i] + TruncationSuffix
			}
		}
	}

	return newStr + TruncationSuffix
}

// formatKeysAndValues truncates any string-valued "command" or "reply" entry to commandWidth bytes,
// since those can carry an entire (possibly multi-megabyte) document.
func formatKeysAndValues(keysAndValues []interface{}, commandWidth uint) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	for i := 0; i < len(keysAndValues); i += 2 {
		key, _ := keysAndValues[i].(string)
		val := keysAndValues[i+1]

		if (key == "command" || key == "reply") && commandWidth > 0 {
			if s, ok := val.(string); ok {
				val = truncate(s, commandWidth)
			}
		}

		out[i] = keysAndValues[i]
		out[i+1] = val
	}
	return out
}

func getEnvMaxDocumentLength() uint {
	max := os.Getenv(maxDocumentLengthEnvVar)
	if max == "" {
		return 0
	}
	maxUint, err := strconv.ParseUint(max, 10, 32)
	if err != nil {
		return 0
	}
	return uint(maxUint)
}

func selectMaxDocumentLength(getLen ...func() uint) uint {
	for _, get := range getLen {
		if l := get(); l != 0 {
			return l
		}
	}
	return DefaultMaxDocumentLength
}

type logSinkPath string

const (
	logSinkPathStdOut logSinkPath = "stdout"
	logSinkPathStdErr logSinkPath = "stderr"
)

func getEnvLogSink() LogSink {
	path := os.Getenv(logSinkPathEnvVar)
	switch logSinkPath(strings.ToLower(path)) {
	case logSinkPathStdErr:
		return newOSSink(os.Stderr)
	case logSinkPathStdOut:
		return newOSSink(os.Stdout)
	}
	if path != "" {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			return newOSSink(f)
		}
	}
	return nil
}

func selectLogSink(getSink ...func() LogSink) LogSink {
	for _, get := range getSink {
		if sink := get(); sink != nil {
			return sink
		}
	}
	return newOSSink(os.Stderr)
}

func getEnvComponentLevels() map[Component]Level {
	componentLevels := make(map[Component]Level)
	globalLevel := ParseLevel(os.Getenv(string(componentEnvVarAll)))

	for _, envVar := range allComponentEnvVars {
		if envVar == componentEnvVarAll {
			continue
		}
		level := globalLevel
		if globalLevel == LevelOff {
			level = ParseLevel(os.Getenv(string(envVar)))
		}
		componentLevels[envVar.component()] = level
	}
	return componentLevels
}

func selectComponentLevels(getters ...func() map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)
	set := make(map[Component]struct{})

	for _, get := range getters {
		for component, level := range get() {
			if _, ok := set[component]; !ok {
				selected[component] = level
			}
			set[component] = struct{}{}
		}
	}
	return selected
}

// osSink is the fallback LogSink writing plain lines to an *os.File.
type osSink struct {
	w *os.File
	mu *sync.Mutex
}

func newOSSink(w *os.File) *osSink {
	return &osSink{w: w, mu: &sync.Mutex{}}
}

func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%d] %s %v\n", level, msg, keysAndValues)
}
