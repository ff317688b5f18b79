package logger

import (
	"fmt"

	"go.uber.org/zap"
)

type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Entry is one recorded diagnostic of a solve.
type Entry struct {
	Severity Severity
	Message  string
	Device   string
	Value    any
	Expected any
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s device=%s value=%v expected=%v",
		e.Severity, e.Message, e.Device, e.Value, e.Expected)
}

// Logger collects solve diagnostics so the caller can inspect them after the
// run. Entries are also forwarded to the zap sink when one is attached.
// Logger is not safe for concurrent use; parallel workers each get their own
// instance and the results are merged afterwards.
type Logger struct {
	entries []Entry
	sink    *zap.SugaredLogger
}

func New() *Logger {
	return &Logger{}
}

// NewWithSink returns a logger that forwards every entry to zl.
func NewWithSink(zl *zap.Logger) *Logger {
	if zl == nil {
		return New()
	}
	return &Logger{sink: zl.Sugar()}
}

func (l *Logger) add(sev Severity, msg, device string, value, expected any) {
	l.entries = append(l.entries, Entry{
		Severity: sev,
		Message:  msg,
		Device:   device,
		Value:    value,
		Expected: expected,
	})
	if l.sink != nil {
		kv := []any{"device", device, "value", value, "expected", expected}
		switch sev {
		case Debug:
			l.sink.Debugw(msg, kv...)
		case Info:
			l.sink.Infow(msg, kv...)
		case Warning:
			l.sink.Warnw(msg, kv...)
		case Error:
			l.sink.Errorw(msg, kv...)
		}
	}
}

func (l *Logger) AddDebug(msg, device string, value any) {
	l.add(Debug, msg, device, value, nil)
}

func (l *Logger) AddInfo(msg, device string, value any) {
	l.add(Info, msg, device, value, nil)
}

func (l *Logger) AddWarning(msg, device string, value any) {
	l.add(Warning, msg, device, value, nil)
}

func (l *Logger) AddError(msg, device string, value, expected any) {
	l.add(Error, msg, device, value, expected)
}

func (l *Logger) Entries() []Entry {
	return l.entries
}

func (l *Logger) HasErrors() bool {
	for _, e := range l.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}

// Merge appends the entries of other, preserving order. Used to fold the
// per-worker loggers of a parallel run back into the caller's logger.
func (l *Logger) Merge(other *Logger) {
	if other == nil {
		return
	}
	l.entries = append(l.entries, other.entries...)
}
