package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLogLevel atomic.Int32
	logger          atomic.Pointer[zerolog.Logger]

	// setMu serializes rebuilds of logger; readers only Load it
	setMu     sync.Mutex
	logOutput io.Writer = os.Stderr
	useColors           = true
)

func init() {
	currentLogLevel.Store(int32(LevelInfo))
	rebuildLogger()
}

// rebuildLogger must be called with setMu held, or from init
func rebuildLogger() {
	console := zerolog.ConsoleWriter{
		Out:        logOutput,
		TimeFormat: "15:04:05",
		NoColor:    !useColors,
	}
	l := zerolog.New(console).With().Timestamp().Logger().Level(zerologLevel(LogLevel(currentLogLevel.Load())))
	logger.Store(&l)
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogOutput redirects log output, keeping level and colors
func SetLogOutput(out io.Writer) {
	setMu.Lock()
	defer setMu.Unlock()
	logOutput = out
	rebuildLogger()
}

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	setMu.Lock()
	defer setMu.Unlock()
	currentLogLevel.Store(int32(level))
	rebuildLogger()
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are being logged
func IsQuiet() bool {
	return LogLevel(currentLogLevel.Load()) >= LevelError
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	setMu.Lock()
	defer setMu.Unlock()
	useColors = enabled
	rebuildLogger()
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	logger.Load().Debug().Msg(fmt.Sprintf(format, args...))
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	logger.Load().Info().Msg(fmt.Sprintf(format, args...))
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	logger.Load().Warn().Msg(fmt.Sprintf(format, args...))
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	logger.Load().Error().Msg(fmt.Sprintf(format, args...))
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	logger.Load().Info().Bool("ok", true).Msg(fmt.Sprintf(format, args...))
}
