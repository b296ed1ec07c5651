// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a logging capability for fulcrum, built on log/slog.
// A process-wide singleton is initialized once and consumed through the
// package-level helpers.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

// singleton holds the process-wide logger. Swappable for tests.
var singleton atomic.Pointer[slog.Logger]

func init() {
	// A usable default before Initialize runs, so early code paths
	// (flag parsing errors, config load) still log somewhere.
	singleton.Store(newLogger(os.Stderr, slog.LevelInfo, true))
}

// unstructuredLogs returns whether logs should be human-readable text
// rather than JSON. Defaults to true unless UNSTRUCTURED_LOGS=false.
func unstructuredLogs() bool {
	v, err := strconv.ParseBool(os.Getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		return true
	}
	return v
}

func newLogger(w io.Writer, level slog.Level, unstructured bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if unstructured {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Initialize creates the singleton logger. Debug level is enabled when
// FULCRUM_DEBUG is truthy; output format follows UNSTRUCTURED_LOGS.
func Initialize() {
	level := slog.LevelInfo
	if v, err := strconv.ParseBool(os.Getenv("FULCRUM_DEBUG")); err == nil && v {
		level = slog.LevelDebug
	}
	l := newLogger(os.Stderr, level, unstructuredLogs())
	singleton.Store(l)
	slog.SetDefault(l)
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// Debug logs a message at debug level.
func Debug(msg string) { Get().Debug(msg) }

// Info logs a message at info level.
func Info(msg string) { Get().Info(msg) }

// Warn logs a message at warn level.
func Warn(msg string) { Get().Warn(msg) }

// Error logs a message at error level.
func Error(msg string) { Get().Error(msg) }

// Debugf logs a printf-style message at debug level.
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }

// Infof logs a printf-style message at info level.
func Infof(format string, args ...any) { Get().Info(fmt.Sprintf(format, args...)) }

// Warnf logs a printf-style message at warn level.
func Warnf(format string, args ...any) { Get().Warn(fmt.Sprintf(format, args...)) }

// Errorf logs a printf-style message at error level.
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// Debugw logs a message with key-value pairs at debug level.
func Debugw(msg string, keysAndValues ...any) { Get().Debug(msg, keysAndValues...) }

// Infow logs a message with key-value pairs at info level.
func Infow(msg string, keysAndValues ...any) { Get().Info(msg, keysAndValues...) }

// Warnw logs a message with key-value pairs at warn level.
func Warnw(msg string, keysAndValues ...any) { Get().Warn(msg, keysAndValues...) }

// Errorw logs a message with key-value pairs at error level.
func Errorw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }

// Panic logs a message at error level and then panics.
func Panic(msg string) {
	Get().Error(msg)
	panic(msg)
}

// Panicf logs a printf-style message at error level and then panics.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Get().Error(msg)
	panic(msg)
}

// Panicw logs a message with key-value pairs at error level and then panics.
func Panicw(msg string, keysAndValues ...any) {
	Get().Error(msg, keysAndValues...)
	panic(msg)
}
