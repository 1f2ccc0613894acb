package logger

import (
	"io"
	"log"
	"os"
)

var (
	Info    *log.Logger
	Warn    *log.Logger
	Debug   *log.Logger
	Verbose *log.Logger
	Error   *log.Logger

	// Current log level for filtering
	currentLogLevel string
)

// Loggers are usable before Init: errors and warnings go to stderr, the
// rest is discarded.
func init() {
	InitWithWriter("warn", os.Stderr)
}

func Init() error {
	return InitWithConfig("info", "optrisk.log")
}

// InitWithConfig logs to logFilePath; errors are mirrored to stderr. An
// empty path logs everything to stderr.
func InitWithConfig(logLevel, logFilePath string) error {
	if logFilePath == "" {
		InitWithWriter(logLevel, os.Stderr)
		return nil
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	InitWithWriter(logLevel, logFile)
	Error.SetOutput(io.MultiWriter(os.Stderr, logFile))
	return nil
}

// InitWithWriter sends every enabled level to w.
func InitWithWriter(logLevel string, w io.Writer) {
	currentLogLevel = logLevel

	Info = log.New(getWriter("info", w, io.Discard), "INFO: ", log.Ldate|log.Ltime)
	Warn = log.New(getWriter("warn", w, io.Discard), "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	Debug = log.New(getWriter("debug", w, io.Discard), "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	Verbose = log.New(getWriter("verbose", w, io.Discard), "VERBOSE: ", log.Ldate|log.Ltime|log.Lshortfile)
	Error = log.New(w, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
}

// getWriter returns the appropriate writer based on log level
func getWriter(level string, activeWriter, disabledWriter io.Writer) io.Writer {
	if shouldLog(level) {
		return activeWriter
	}
	return disabledWriter
}

// shouldLog determines if a log level should be active
func shouldLog(level string) bool {
	levels := map[string]int{
		"error":   0,
		"warn":    1,
		"info":    2,
		"debug":   3,
		"verbose": 4,
	}

	currentLevel, exists := levels[currentLogLevel]
	if !exists {
		currentLevel = 2 // default to info
	}

	requiredLevel, exists := levels[level]
	if !exists {
		return false
	}

	return currentLevel >= requiredLevel
}
