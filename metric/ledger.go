/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metric exports ledger run metrics through a private prometheus
// registry.
package metric

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

func ledgerNamespace(s string) string {
	return fmt.Sprintf("ledger_%s", s)
}

// ledgerStatsMetrics provide description, value, and value type for chain
// state gauges.
type ledgerStatsMetrics []struct {
	desc    *prometheus.Desc
	eval    func(*Ledger) float64
	valType prometheus.ValueType
}

// Ledger records the metrics of one domain ledger. A nil *Ledger discards
// everything.
type Ledger struct {
	sync.RWMutex
	domain   string
	registry *prometheus.Registry

	height uint64
	rev    float64
	cost   float64

	committed prometheus.Counter
	retries   prometheus.Counter
	duration  prometheus.Observer
	pending   prometheus.Gauge
	findings  *prometheus.CounterVec

	metrics ledgerStatsMetrics
}

// NewLedger returns the metrics of domain registered on a fresh registry.
func NewLedger(domain string) *Ledger {
	labels := prometheus.Labels{"domain": domain}
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ledgerNamespace("segments_committed_total"),
		Help: "Segments appended to the journal.",
	}, []string{"domain"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ledgerNamespace("segment_retries_total"),
		Help: "Segment productions retried after a transient failure.",
	}, []string{"domain"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    ledgerNamespace("segment_duration_seconds"),
		Help:    "Time from segment dispatch to commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"domain"})
	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ledgerNamespace("pending_segments"),
		Help: "Produced segments waiting for a predecessor.",
	}, []string{"domain"})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ledgerNamespace("audit_findings_total"),
		Help: "Audit findings by kind.",
	}, []string{"domain", "kind"})

	l := &Ledger{
		domain:    domain,
		registry:  prometheus.NewRegistry(),
		committed: committed.With(labels),
		retries:   retries.With(labels),
		duration:  duration.With(labels),
		pending:   pending.With(labels),
		findings:  findings,
	}
	l.metrics = ledgerStatsMetrics{
		{
			desc: prometheus.NewDesc(
				ledgerNamespace("chain_height"),
				"Segments in the journal.",
				nil,
				labels,
			),
			eval:    func(l *Ledger) float64 { return float64(l.height) },
			valType: prometheus.GaugeValue,
		},
		{
			desc: prometheus.NewDesc(
				ledgerNamespace("rev_total"),
				"Revenue folded over the journal.",
				nil,
				labels,
			),
			eval:    func(l *Ledger) float64 { return l.rev },
			valType: prometheus.GaugeValue,
		},
		{
			desc: prometheus.NewDesc(
				ledgerNamespace("cost_total"),
				"Cost folded over the journal.",
				nil,
				labels,
			),
			eval:    func(l *Ledger) float64 { return l.cost },
			valType: prometheus.GaugeValue,
		},
	}
	l.registry.MustRegister(committed, retries, duration, pending, findings, l)
	return l
}

// Registry returns the registry holding the ledger metrics.
func (l *Ledger) Registry() *prometheus.Registry {
	return l.registry
}

// Describe implements prometheus.Collector.
func (l *Ledger) Describe(ch chan<- *prometheus.Desc) {
	for _, i := range l.metrics {
		ch <- i.desc
	}
}

// Collect implements prometheus.Collector.
func (l *Ledger) Collect(ch chan<- prometheus.Metric) {
	l.RLock()
	defer l.RUnlock()
	for _, i := range l.metrics {
		ch <- prometheus.MustNewConstMetric(i.desc, i.valType, i.eval(l))
	}
}

// SegmentCommitted records one journal append that took d since dispatch.
func (l *Ledger) SegmentCommitted(d time.Duration) {
	if l == nil {
		return
	}
	l.committed.Inc()
	l.duration.Observe(d.Seconds())
}

// SegmentRetried records one retry.
func (l *Ledger) SegmentRetried() {
	if l == nil {
		return
	}
	l.retries.Inc()
}

// SetPending records the size of the reorder buffer.
func (l *Ledger) SetPending(n int) {
	if l == nil {
		return
	}
	l.pending.Set(float64(n))
}

// SetChain records the journal height and folded totals.
func (l *Ledger) SetChain(height uint64, rev, cost float64) {
	if l == nil {
		return
	}
	l.Lock()
	defer l.Unlock()
	l.height, l.rev, l.cost = height, rev, cost
}

// Finding records one audit finding of kind.
func (l *Ledger) Finding(kind string) {
	if l == nil {
		return
	}
	l.findings.WithLabelValues(l.domain, kind).Inc()
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (l *Ledger) WriteTextfile(path string) error {
	if l == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, l.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
