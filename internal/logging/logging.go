// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "autotrader", "logs", "trader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogSignal logs an ensemble signal decision.
func LogSignal(logger zerolog.Logger, symbol, action string, confidence float64, source string) {
	logger.Info().
		Str("event", "signal").
		Str("symbol", symbol).
		Str("action", action).
		Float64("confidence", confidence).
		Str("source", source).
		Msg("Signal produced")
}

// LogFill logs an order fill event.
func LogFill(logger zerolog.Logger, symbol, side string, amount, price float64, simulated bool) {
	logger.Info().
		Str("event", "fill").
		Str("symbol", symbol).
		Str("side", side).
		Float64("amount", amount).
		Float64("price", price).
		Bool("simulated", simulated).
		Msg("Order filled")
}

// LogClose logs a position close event.
func LogClose(logger zerolog.Logger, symbol, reason string, pnl float64, duration time.Duration) {
	logger.Info().
		Str("event", "close").
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("pnl", pnl).
		Dur("duration", duration).
		Msg("Position closed")
}

// LogTrip logs a circuit breaker trip.
func LogTrip(logger zerolog.Logger, reason string, severity string, cooldown time.Duration) {
	logger.Warn().
		Str("event", "breaker_trip").
		Str("reason", reason).
		Str("severity", severity).
		Dur("cooldown", cooldown).
		Msg("Circuit breaker tripped")
}
