// Package logger carries the engine's diagnostics. The engine has a fail-fast
// policy: an I/O error on the staging path means the plot is unrecoverable,
// so tier-1 failures go through Fatalf and terminate the process.
package logger

import (
	"log"
	"os"

	"github.com/fatih/color"
)

// Debug enables per-command trace lines in the queue. Off unless a debug
// build flips it.
var Debug = false

var (
	warnf  = color.New(color.FgYellow).SprintfFunc()
	errorf = color.New(color.FgRed).SprintfFunc()
)

func Debugf(format string, args ...any) {
	if Debug {
		log.Printf(format, args...)
	}
}

func Infof(format string, args ...any) {
	log.Printf(format, args...)
}

func Warnf(format string, args ...any) {
	log.Print(warnf(format, args...))
}

func Errorf(format string, args ...any) {
	log.Print(errorf(format, args...))
}

// Fatalf logs the diagnostic and aborts the process.
func Fatalf(format string, args ...any) {
	log.Print(errorf(format, args...))
	os.Exit(1)
}
