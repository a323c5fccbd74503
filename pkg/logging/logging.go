// Package logging constructs the application's root logrus.Logger and hands
// out component-scoped entries.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger from the given level and format ("json" or
// anything else for text), matching config.LogLevel/config.LogFormat.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}

// Component returns a *logrus.Entry scoped to name, one entry per
// subsystem (search-engine, dispatcher, cache, upstream, transport).
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
