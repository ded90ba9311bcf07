package termstat

import (
	"bytes"
	"testing"
	"time"

	"github.com/opensource-observer/collect/test"
)

func TestCollector(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewCollector(buf, time.Hour)
	c.Count("collect.rows.read", 2, 1)
	c.Count("collect.rows.read", 3, 1)
	c.Timing("collect.duration", 1500*time.Millisecond, 1)
	c.Gauge("batch", 7, 1)
	test.ErrNil(t, c.Close(), "Close")
	test.MustBe(t, "\rcollect.rows.read: 5 collect.duration: 1.5s batch: 7 ", buf.String())
}

func TestCollectorUnchanged(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewCollector(buf, time.Hour)
	test.ErrNil(t, c.Close(), "Close")
	test.MustBe(t, "", buf.String())
}
