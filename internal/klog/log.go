// Package klog is keyvalued's logging package. Grounded on
// _examples/rclone-rclone/fs/log/slog_test.go, which shows rclone's own
// logging is a level-aware formatter built on the standard library's
// log/slog rather than a hand-rolled formatter — this package follows
// the same shape: a package-level *slog.Logger plus Debugf/Infof/Errorf
// helpers shaped like rclone's fs.Debugf/fs.Errorf (tag-first, then a
// printf-style format).
package klog

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
})).With("tag", "keyvalued")

// SetLevel adjusts the minimum level emitted. Wired to the daemon's
// --log-level flag.
func SetLevel(level slog.Level) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("tag", "keyvalued")
}

// Debugf logs at debug level, tagged with component (e.g. "store",
// "dispatch").
func Debugf(component, format string, args ...any) {
	logger.Debug(sprintf(format, args...), "component", component)
}

// Infof logs at info level.
func Infof(component, format string, args ...any) {
	logger.Info(sprintf(format, args...), "component", component)
}

// Errorf logs at error level. It does not wrap or return an error; call
// sites still propagate the real error value up the call stack.
func Errorf(component, format string, args ...any) {
	logger.Error(sprintf(format, args...), "component", component)
}
