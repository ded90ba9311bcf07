package statsd

import (
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/opensource-observer/collect/test"
)

type call struct {
	kind  string
	name  string
	value interface{}
	tags  []string
}

// fakeClient records calls. Methods not overridden panic through the nil
// embedded interface.
type fakeClient struct {
	statsd.ClientInterface
	calls  []call
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	f.calls = append(f.calls, call{"count", name, value, tags})
	return nil
}

func (f *fakeClient) Gauge(name string, value float64, tags []string, rate float64) error {
	f.calls = append(f.calls, call{"gauge", name, value, tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Set(name string, value string, tags []string, rate float64) error {
	f.calls = append(f.calls, call{"set", name, value, tags})
	return nil
}

func (f *fakeClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	f.calls = append(f.calls, call{"timing", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestStatter(t *testing.T) {
	f := &fakeClient{}
	s := NewWithClient(f)
	s.Count("collect.rows.read", 3, 1, "collector:dependents")
	s.Gauge("g", 1.5, 1)
	s.Histogram("h", 2, 1)
	s.Set("s", "x", 1)
	s.Timing("collect.duration", time.Second, 1, "collector:dependents")
	test.ErrNil(t, s.Close(), "Close")

	test.MustBe(t, []call{
		{"count", "collect.rows.read", int64(3), []string{"collector:dependents"}},
		{"gauge", "g", 1.5, []string(nil)},
		{"histogram", "h", float64(2), []string(nil)},
		{"set", "s", "x", []string(nil)},
		{"timing", "collect.duration", time.Second, []string{"collector:dependents"}},
	}, f.calls)
	test.MustBe(t, true, f.closed)
}
