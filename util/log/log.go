// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cpLog contains a simple logger interface used by the other chatpay packages.
package cpLog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// Timestamp format
	timeFormat = "15:04:05.000"

	DebugLevel = "DEBUG" // Loggers initialized with DebugLevel will output Debugf(), Infof(), Warnf() and Errorf().
	InfoLevel  = "INFO"  // Loggers initialized with InfoLevel will output Infof(), Warnf() and Errorf().
	WarnLevel  = "WARN"  // Loggers initialized with WarnLevel will output Warnf() and Errorf().
	ErrorLevel = "ERROR" // Loggers initialized with ErrorLevel will output Errorf().
)

// Logger is a simple logger interface that can have subloggers for specific areas.
type Logger interface {
	Warnf(msg string, args ...any)
	Errorf(msg string, args ...any)
	Infof(msg string, args ...any)
	Debugf(msg string, args ...any)
	Sub(module string) Logger
}

type noopLogger struct{}

func (n *noopLogger) Errorf(_ string, _ ...any) {}
func (n *noopLogger) Warnf(_ string, _ ...any)  {}
func (n *noopLogger) Infof(_ string, _ ...any)  {}
func (n *noopLogger) Debugf(_ string, _ ...any) {}
func (n *noopLogger) Sub(_ string) Logger       { return n }

// Noop is a no-op Logger implementation that silently drops everything.
var Noop Logger = &noopLogger{}

type writerLogger struct {
	out   io.Writer
	lock  *sync.Mutex
	mod   string
	color bool
	min   int
}

var colors = map[string]string{
	InfoLevel:  "\033[36m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
}

var levelToInt = map[string]int{
	"":         -1,
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

func (s *writerLogger) outputf(level, msg string, args ...any) {
	if !shouldOutput(s.min, level) {
		return
	}
	var colorStart, colorReset string
	if s.color {
		colorStart = colors[level]
		colorReset = "\033[0m"
	}
	line := fmt.Sprintf("%s%s [%s %s] %s%s\n", timestamp(), colorStart, s.mod, level, fmt.Sprintf(msg, args...), colorReset)
	s.lock.Lock()
	_, _ = io.WriteString(s.out, line)
	s.lock.Unlock()
}

func (s *writerLogger) Errorf(msg string, args ...any) { s.outputf(ErrorLevel, msg, args...) }
func (s *writerLogger) Warnf(msg string, args ...any)  { s.outputf(WarnLevel, msg, args...) }
func (s *writerLogger) Infof(msg string, args ...any)  { s.outputf(InfoLevel, msg, args...) }
func (s *writerLogger) Debugf(msg string, args ...any) { s.outputf(DebugLevel, msg, args...) }

// Sub returns a sub-logger which uses the passed-in module name as a tag.
// Module names of sub loggers are slash-separated appended to the module names of "parent" loggers.
func (s *writerLogger) Sub(mod string) Logger {
	return &writerLogger{out: s.out, lock: s.lock, mod: sub(s.mod, mod), color: s.color, min: s.min}
}

// Writer is a simple Logger implementation that outputs lines to the given writer. The module
// name given is included in log lines. Writes from the logger and all its sub-loggers are
// serialized, so each line is written atomically.
//
// The minLevel is the minimum level to log and can be DebugLevel, InfoLevel, WarnLevel or
// ErrorLevel.
func Writer(out io.Writer, module string, minLevel string, color bool) Logger {
	return &writerLogger{out: out, lock: &sync.Mutex{}, mod: module, color: color, min: levelToInt[strings.ToUpper(minLevel)]}
}

// Stdout is a simple Logger implementation that outputs to stdout. The module name given is
// included in log lines.
//
// If color is true, then info, warn and error logs will be colored cyan, yellow and red
// respectively using ANSI color escape codes.
func Stdout(module string, minLevel string, color bool) Logger {
	return Writer(os.Stdout, module, minLevel, color)
}

// sub is a helper to consistently propagate the name of a submodule for all loggers.
func sub(existing, new string) string {
	out := existing
	if out != "" && new != "" {
		out += "/"
	}
	out += new
	return out
}

func timestamp() string {
	return time.Now().Format(timeFormat)
}

// shouldOutput returns true when the the logger's level vs. the message's level indicates
// that the log should be sent.
func shouldOutput(loggerLevel int, messageLevel string) bool {
	return levelToInt[messageLevel] >= loggerLevel
}
