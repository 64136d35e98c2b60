// Package log defines the logging interface used throughout radiuscore.
package log

import "github.com/sirupsen/logrus"

// Logger is the minimal logging surface radiuscore components depend on.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger is a logrus-backed Logger.
type DefaultLogger struct {
	logger *logrus.Logger
}

// NewDefaultLogger returns a Logger at info level with a text formatter.
func NewDefaultLogger() *DefaultLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)

	return &DefaultLogger{logger: logger}
}

// NewLoggerWithLevel returns a Logger at the named level, falling back to
// info if the level string doesn't parse.
func NewLoggerWithLevel(level string) *DefaultLogger {
	l := NewDefaultLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.logger.SetLevel(lvl)

	return l
}

func (l *DefaultLogger) Debug(args ...interface{})                 { l.logger.Debug(args...) }
func (l *DefaultLogger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l *DefaultLogger) Info(args ...interface{})                  { l.logger.Info(args...) }
func (l *DefaultLogger) Infof(format string, args ...interface{})  { l.logger.Infof(format, args...) }
func (l *DefaultLogger) Warn(args ...interface{})                  { l.logger.Warn(args...) }
func (l *DefaultLogger) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l *DefaultLogger) Error(args ...interface{})                 { l.logger.Error(args...) }
func (l *DefaultLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }

// Nop is a Logger that discards everything, useful in tests.
type Nop struct{}

func (Nop) Debug(args ...interface{})                 {}
func (Nop) Debugf(format string, args ...interface{}) {}
func (Nop) Info(args ...interface{})                  {}
func (Nop) Infof(format string, args ...interface{})  {}
func (Nop) Warn(args ...interface{})                  {}
func (Nop) Warnf(format string, args ...interface{})  {}
func (Nop) Error(args ...interface{})                 {}
func (Nop) Errorf(format string, args ...interface{}) {}
