package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Use it
// in tests to silence component logging; log.Logger is an alias for
// *slog.Logger, so this satisfies every constructor in the project.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
