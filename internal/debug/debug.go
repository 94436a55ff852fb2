package debug

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (connect/disconnect, capture results)
	LevelLive    = 2 // Live info (capture progress, downloads)
	LevelVerbose = 3 // Verbose (parameter reads, retries, cache decisions)
	LevelTrace   = 4 // Trace (driver calls, event polls, very low level)
)

var (
	level  int
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (connection state, capture results)
// 2 = live info (capture progress, downloads)
// 3 = verbose (parameter reads, retries, dimension resolution)
// 4 = trace (driver calls, event polls)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(os.Stdout, "[Tether] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects log output, e.g. to mirror logs into the SSE stream.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Connected prints a camera connection (level 1).
func Connected(model, port string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Camera connected: %s (%s)", model, port)
	}
}

// Disconnected prints a camera disconnection with its cause (level 1).
func Disconnected(reason string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Camera disconnected: %s", reason)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Capture prints a capture phase (level 2).
func Capture(phase string) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Capture: %s", phase)
	}
}

// Download prints a finished download (level 2).
func Download(path string, width, height int) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Downloaded %s (%dx%d)", path, width, height)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered startup step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, driver calls).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Driver prints a native driver operation (level 4).
func Driver(operation string, detail interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[DRIVER] %s %v", operation, detail)
	}
}

// Event prints a polled camera event (level 4).
func Event(kind string) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[EVENT] %s", kind)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
