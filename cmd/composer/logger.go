package main

import (
	"os"

	charm "github.com/charmbracelet/log"

	"github.com/MetaCell/sckan-composer-sub001/internal/core"
)

// charmLogger adapts charmbracelet/log to the core.Logger surface.
type charmLogger struct {
	l *charm.Logger
}

func newLogger(verbose bool) core.Logger {
	l := charm.NewWithOptions(os.Stderr, charm.Options{
		ReportTimestamp: true,
		Prefix:          "composer",
	})
	if verbose {
		l.SetLevel(charm.DebugLevel)
	}
	return charmLogger{l: l}
}

func (c charmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c charmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c charmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c charmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }
