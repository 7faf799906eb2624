// Package logging builds the slog.Logger used by the widget binaries.
//
// Two formats are supported: "json" for machine-readable output and the
// default colorized text format for terminals. The widget harness writes
// chat output to stdout, so loggers are normally pointed at stderr.
package logging
