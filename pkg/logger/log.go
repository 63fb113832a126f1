// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"tcmutarget/pkg/common"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	Error = LogLevel(iota)
	Warning
	Info
	Debug
)

var logFileLock = &sync.Mutex{}

type LoggingConfig struct {
	level  LogLevel
	output *logrus.Logger
}

type Logger struct {
	entry *logrus.Entry
}

var logFileInstance *LoggingConfig

func (level LogLevel) logrusLevel() logrus.Level {
	switch level {
	case Error:
		return logrus.ErrorLevel
	case Warning:
		return logrus.WarnLevel
	case Debug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func (level LogLevel) String() string {
	switch level {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Debug:
		return "debug"
	default:
		return "info"
	}
}

// ParseLevel accepts the level names used in configuration files.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return Error, nil
	case "warn", "warning":
		return Warning, nil
	case "", "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return Info, fmt.Errorf("unknown log level '%s'", name)
	}
}

func GetLoggingConfig() *LoggingConfig {
	logFileLock.Lock()
	defer logFileLock.Unlock()
	if logFileInstance == nil {
		output := logrus.New()
		output.SetOutput(os.Stderr)
		output.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		output.SetLevel(Info.logrusLevel())
		logFileInstance = &LoggingConfig{
			level:  Info,
			output: output,
		}
	}
	return logFileInstance
}

func SetLoggingConfig(level LogLevel) {
	loggingConfig := GetLoggingConfig()
	logFileLock.Lock()
	defer logFileLock.Unlock()
	loggingConfig.level = level
	loggingConfig.output.SetLevel(level.logrusLevel())
}

// SetOutput redirects every logger, mostly useful in tests.
func SetOutput(writer io.Writer) {
	GetLoggingConfig().output.SetOutput(writer)
}

func GetLogger() *Logger {
	loggingConfig := GetLoggingConfig()
	name := common.GetTraceInfo()
	return &Logger{
		entry: loggingConfig.output.WithField("caller", name),
	}
}

func (logger Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: logger.entry.WithField(key, value)}
}

func (logger Logger) Error(data ...any) {
	logger.entry.Error(data...)
}

func (logger Logger) Warn(data ...any) {
	logger.entry.Warn(data...)
}

func (logger Logger) Warning(data ...any) {
	logger.Warn(data...)
}

func (logger Logger) Info(data ...any) {
	logger.entry.Info(data...)
}

func (logger Logger) Debug(data ...any) {
	logger.entry.Debug(data...)
}

func (logger Logger) Errorf(format string, a ...any) {
	logger.entry.Errorf(format, a...)
}

func (logger Logger) Warnf(format string, a ...any) {
	logger.entry.Warnf(format, a...)
}

func (logger Logger) Warningf(format string, a ...any) {
	logger.Warnf(format, a...)
}

func (logger Logger) Infof(format string, a ...any) {
	logger.entry.Infof(format, a...)
}

func (logger Logger) Debugf(format string, a ...any) {
	logger.entry.Debugf(format, a...)
}
