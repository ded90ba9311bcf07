package collect

import (
	"io"
	"log"
	"time"
)

// Statter is the interface that stats collectors must implement to get stats
// out of a collection run.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter does nothing.
type NopStatter struct{}

// Count does nothing.
func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

// Gauge does nothing.
func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (NopStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing does nothing.
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

type taggedStatter struct {
	Statter
	tags []string
}

// WithTags returns a Statter which adds tags to every stat sent to s.
func WithTags(s Statter, tags ...string) Statter {
	if len(tags) == 0 {
		return s
	}
	return taggedStatter{Statter: s, tags: tags}
}

func (t taggedStatter) with(tags []string) []string {
	ret := make([]string, 0, len(t.tags)+len(tags))
	return append(append(ret, t.tags...), tags...)
}

func (t taggedStatter) Count(name string, value int64, rate float64, tags ...string) {
	t.Statter.Count(name, value, rate, t.with(tags)...)
}

func (t taggedStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	t.Statter.Gauge(name, value, rate, t.with(tags)...)
}

func (t taggedStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	t.Statter.Histogram(name, value, rate, t.with(tags)...)
}

func (t taggedStatter) Set(name string, value string, rate float64, tags ...string) {
	t.Statter.Set(name, value, rate, t.with(tags)...)
}

func (t taggedStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.Statter.Timing(name, value, rate, t.with(tags)...)
}

// Logger is the interface that loggers must implement to get collector logs.
// Debugf is used for per-row detail which would be too noisy at Printf.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NopLogger logs nothing.
type NopLogger struct{}

// Printf does nothing.
func (NopLogger) Printf(format string, v ...interface{}) {}

// Debugf does nothing.
func (NopLogger) Debugf(format string, v ...interface{}) {}

// StdLogger only prints on Printf.
type StdLogger struct {
	*log.Logger
}

// Printf implements Logger interface.
func (s StdLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface, but prints nothing.
func (StdLogger) Debugf(format string, v ...interface{}) {}

// VerboseLogger prints on both Printf and Debugf.
type VerboseLogger struct {
	*log.Logger
}

// Printf implements Logger interface.
func (s VerboseLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface.
func (s VerboseLogger) Debugf(format string, v ...interface{}) {
	s.Logger.Printf("DEBUG "+format, v...)
}

// NewLogger returns a VerboseLogger writing to w if verbose is set, and a
// StdLogger otherwise.
func NewLogger(w io.Writer, verbose bool) Logger {
	l := log.New(w, "", log.LstdFlags)
	if verbose {
		return VerboseLogger{Logger: l}
	}
	return StdLogger{Logger: l}
}
