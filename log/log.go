// Package log provides a thin, component-named wrapper over glog so
// callers log with a consistent prefix without threading one through
// every function signature by hand.
package log

import (
	"fmt"

	"github.com/golang/glog"
)

// Logger is a glog frontend labelled with the component that owns it
// (e.g. "network", "loop", "mda:stat").
type Logger struct {
	component string
}

// New returns a Logger labelled component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) prefix(format string) string {
	if l == nil || l.component == "" {
		return format
	}
	return "[" + l.component + "] " + format
}

// Infof logs at V(0)/Info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	glog.Infof(l.prefix(format), args...)
}

// Warningf logs at warning level.
func (l *Logger) Warningf(format string, args ...interface{}) {
	glog.Warningf(l.prefix(format), args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	glog.Errorf(l.prefix(format), args...)
}

// V reports whether verbosity level v is enabled, mirroring glog.V's
// boolean-ish gate so call sites can write `if l.V(2) { ... }`.
func (l *Logger) V(v glog.Level) bool {
	return bool(glog.V(v))
}

// VInfof logs at the given verbosity level if enabled.
func (l *Logger) VInfof(v glog.Level, format string, args ...interface{}) {
	if glog.V(v) {
		glog.Infof(l.prefix(format), args...)
	}
}

// String renders a value's default representation, used by callers
// building one-off log lines from structured data without adding a
// Stringer to every type.
func String(v interface{}) string {
	return fmt.Sprintf("%+v", v)
}
