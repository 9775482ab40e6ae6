// Package logging is the process-wide logger for wakepc. The core runs
// unattended for hours, so every component prefixes its messages with a
// stable tag ("[audio]", "[wake]", ...) to keep long logs greppable.
package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all logging (used by CLI subcommands that print tables).
func Disable() {
	disabled = true
}

// Enable turns logging back on.
func Enable() {
	disabled = false
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf("WARN "+format, v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf("ERROR "+format, v...)
	}
}

// Tagged returns a Logger that prefixes every message with "[tag] ".
func Tagged(tag string) Logger {
	return Logger{tag: "[" + tag + "] "}
}

// Logger is a component-scoped logger.
type Logger struct {
	tag string
}

// Infof logs a formatted info message with the component tag.
func (l Logger) Infof(format string, v ...any) {
	Infof(l.tag+format, v...)
}

// Warnf logs a formatted warning message with the component tag.
func (l Logger) Warnf(format string, v ...any) {
	Warnf(l.tag+format, v...)
}

// Errorf logs a formatted error message with the component tag.
func (l Logger) Errorf(format string, v ...any) {
	Errorf(l.tag+format, v...)
}
