package config

import "github.com/phuslu/log"

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) log.Logger {
	return log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			ColorOutput:    true,
			EndWithMessage: true,
		},
	}
}
