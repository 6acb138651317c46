// Package debuglog is the engine's component-tagged debug logger. Messages
// carry a short component tag ("PROVIDER", "TRACKER", "SESSION") so a single
// interleaved log stays readable when the streaming worker, inference and
// association all report at once. Logging is off unless enabled; verbose
// messages additionally require verbose mode.
package debuglog

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	enabled bool
	verbose bool
	logger  = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
)

// Enable turns debug logging on or off
func Enable(on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
}

// EnableVerbose turns verbose logging on or off. Verbose implies enabled.
func EnableVerbose(on bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = on
	if on {
		enabled = true
	}
}

// SetOutput redirects log output, mainly for tests
func SetOutput(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Msg logs a component-tagged message when debug logging is enabled
func Msg(component, message string) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	logger.Printf("[%s] %s", component, message)
}

// Msgf is Msg with formatting
func Msgf(component, format string, args ...interface{}) {
	Msg(component, fmt.Sprintf(format, args...))
}

// Verbose logs a component-tagged message only in verbose mode. Used for
// per-frame calculation detail that would swamp normal debug output.
func Verbose(component, message string) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose {
		return
	}
	logger.Printf("[%s] %s", component, message)
}

// Verbosef is Verbose with formatting
func Verbosef(component, format string, args ...interface{}) {
	Verbose(component, fmt.Sprintf(format, args...))
}
