// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	defaultLogger *log.Logger
	once          sync.Once
)

// GetLogger returns the default logger instance. The level starts at warn
// and can be raised with LOG_LEVEL (error, warn, info, debug, trace).
func GetLogger() *log.Logger {
	once.Do(func() {
		defaultLogger = log.New()
		defaultLogger.SetOutput(os.Stderr)
		defaultLogger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000000",
		})
		defaultLogger.SetLevel(log.WarnLevel)

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			if lvl, err := log.ParseLevel(level); err == nil {
				defaultLogger.SetLevel(lvl)
			}
		}

		// Enable debug logging if FUSE_DEBUG is set
		if os.Getenv("FUSE_DEBUG") != "" {
			defaultLogger.SetLevel(log.DebugLevel)
		}
	})
	return defaultLogger
}

// Component returns an entry of the default logger tagged with a component name.
func Component(name string) *log.Entry {
	return GetLogger().WithField("component", name)
}

// SetLevel changes the level of the default logger.
func SetLevel(name string) error {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	GetLogger().SetLevel(lvl)
	return nil
}

// Discard returns an entry that drops everything written to it.
func Discard() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	l.SetLevel(log.PanicLevel)
	return log.NewEntry(l)
}
