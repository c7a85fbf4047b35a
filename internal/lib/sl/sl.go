// Package sl provides slog attribute helpers shared across services.
package sl

import (
	"log/slog"
	"strings"
)

// Err wraps an error as a standard "error" attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Module tags log records with the emitting component name.
func Module(name string) slog.Attr {
	return slog.String("module", name)
}

// Secret logs a sensitive value keeping only the last four characters.
func Secret(key, value string) slog.Attr {
	if len(value) <= 4 {
		return slog.String(key, strings.Repeat("*", len(value)))
	}
	return slog.String(key, strings.Repeat("*", 4)+value[len(value)-4:])
}
