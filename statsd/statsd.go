// Package statsd adapts a DataDog statsd client to collect.Statter.
package statsd

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

var _ collect.Statter = &Statter{}

// Statter sends stats to a statsd agent. Send errors are dropped, as stats
// are best effort.
type Statter struct {
	client statsd.ClientInterface
}

// New returns a Statter sending to the agent at addr. Every metric is
// prefixed with namespace and carries tags.
func New(addr, namespace string, tags ...string) (*Statter, error) {
	client, err := statsd.New(addr, statsd.WithNamespace(namespace), statsd.WithTags(tags))
	if err != nil {
		return nil, errors.Wrapf(err, "creating statsd client for %s", addr)
	}
	return &Statter{client: client}, nil
}

// NewWithClient returns a Statter over an existing client.
func NewWithClient(client statsd.ClientInterface) *Statter {
	return &Statter{client: client}
}

// Count implements collect.Statter.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	_ = s.client.Count(name, value, tags, rate)
}

// Gauge implements collect.Statter.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	_ = s.client.Gauge(name, value, tags, rate)
}

// Histogram implements collect.Statter.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	_ = s.client.Histogram(name, value, tags, rate)
}

// Set implements collect.Statter.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {
	_ = s.client.Set(name, value, tags, rate)
}

// Timing implements collect.Statter.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	_ = s.client.Timing(name, value, tags, rate)
}

// Close flushes buffered metrics and closes the client.
func (s *Statter) Close() error {
	return errors.Wrap(s.client.Close(), "closing statsd client")
}
