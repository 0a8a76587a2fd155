package client

import (
	"errors"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
)

const metricPrefix = "bmemcached."

type clientMetrics struct {
	registry   metrics.Registry
	timers     map[binprot.Opcode]metrics.Timer
	hits       metrics.Counter
	misses     metrics.Counter
	errors     metrics.Counter
	overloaded metrics.Counter
}

func newClientMetrics(r metrics.Registry) *clientMetrics {
	m := &clientMetrics{
		registry:   r,
		timers:     make(map[binprot.Opcode]metrics.Timer),
		hits:       metrics.GetOrRegisterCounter(metricPrefix+"get.hit", r),
		misses:     metrics.GetOrRegisterCounter(metricPrefix+"get.miss", r),
		errors:     metrics.GetOrRegisterCounter(metricPrefix+"errors", r),
		overloaded: metrics.GetOrRegisterCounter(metricPrefix+"overloaded", r),
	}
	for _, op := range []binprot.Opcode{
		binprot.OpGet, binprot.OpSet, binprot.OpAdd, binprot.OpReplace,
		binprot.OpDelete, binprot.OpIncrement, binprot.OpDecrement,
	} {
		m.timers[op] = metrics.GetOrRegisterTimer(metricPrefix+op.String(), r)
	}
	return m
}

func (m *clientMetrics) observe(op binprot.Opcode, start time.Time, err error) {
	m.timers[op].UpdateSince(start)
	if op == binprot.OpGet {
		switch {
		case err == nil:
			m.hits.Inc(1)
		case errors.Is(err, ErrKeyNotFound):
			m.misses.Inc(1)
			return
		}
	}
	if err != nil {
		m.errors.Inc(1)
	}
}
