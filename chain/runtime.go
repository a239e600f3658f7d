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

package chain

import (
	"context"
	"time"

	"github.com/ivpusic/grpool"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/clock"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/metric"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/timer"
)

// DefaultWorkers is the worker pool size used when Options.Workers is unset.
const DefaultWorkers = 8

// Options configures a ledger run.
type Options struct {
	Domain segment.Domain
	Store  *capsule.Store
	// Worker produces segments; a Producer over Domain and Store by default.
	Worker segment.Worker
	// Segments is the target journal length.
	Segments   uint64
	Cycles     int
	Seed       string
	Workers    int
	Retries    int
	MaxPending int
	Clock      clock.Clock
	Digester   hash.Digester
	Metrics    *metric.Ledger
}

// NewOptions builds run options from a loaded configuration.
func NewOptions(cfg *conf.Config) (o *Options, err error) {
	profile, err := conf.LoadProfile(cfg.Profile)
	if err != nil {
		return
	}
	d, err := segment.ByName(cfg.Domain, profile)
	if err != nil {
		return
	}
	store, err := capsule.NewStore(cfg.OutDir, nil)
	if err != nil {
		return
	}
	clk := clock.Real()
	at, ok, err := cfg.EpochTime()
	if err != nil {
		return
	}
	if ok {
		clk = clock.Epoch(at, cfg.EpochStep)
	}
	return &Options{
		Domain:     d,
		Store:      store,
		Segments:   uint64(cfg.Segments),
		Cycles:     cfg.Cycles,
		Seed:       cfg.Seed,
		Workers:    cfg.Workers,
		Retries:    cfg.Retries,
		MaxPending: cfg.MaxPending,
		Clock:      clk,
		Metrics:    metric.NewLedger(cfg.Domain),
	}, nil
}

type outcome struct {
	index  uint64
	result *segment.Result
	err    error
}

// Run produces segments Next()..Segments on a bounded pool and commits them
// in index order. The summary is written after the last commit. Any failure
// cancels the remaining work and is returned as a *FatalError.
func Run(ctx context.Context, o *Options) (s *types.Summary, err error) {
	if o == nil || o.Domain == nil || o.Store == nil {
		return nil, errors.Wrap(ErrInvalidOptions, "run needs a domain and a store")
	}
	worker := o.Worker
	if worker == nil {
		worker = segment.NewProducer(o.Domain, o.Store, o.Cycles)
	}
	workers := o.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	closer, err := NewCloser(CloserConfig{
		Domain:     o.Domain.Name(),
		Seed:       o.Seed,
		Columns:    o.Domain.Columns(),
		Store:      o.Store,
		Clock:      o.Clock,
		Digester:   o.Digester,
		MaxPending: o.MaxPending,
		Metrics:    o.Metrics,
	})
	if err != nil {
		return nil, &FatalError{Segment: 1, Err: err}
	}
	defer closer.Close()

	runLog := log.WithFields(log.Fields{
		"run":    uuid.Must(uuid.NewV4()).String(),
		"domain": o.Domain.Name(),
	})
	start := closer.Next()
	if start > o.Segments {
		runLog.WithField("segments", closer.Committed()).Info("journal already complete")
		return finish(closer)
	}
	total := int(o.Segments - start + 1)
	runLog.WithFields(log.Fields{
		"from":    start,
		"to":      o.Segments,
		"workers": workers,
	}).Info("ledger run started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := grpool.NewPool(workers, total)
	defer pool.Release()

	results := make(chan *outcome, total)
	dispatched := make(map[uint64]time.Time, total)
	pool.WaitCount(total)
	for index := start; index <= o.Segments; index++ {
		index := index
		dispatched[index] = time.Now()
		pool.JobQueue <- func() {
			defer pool.JobDone()
			r, err := produce(ctx, worker, index, o.Retries, o.Metrics, runLog)
			results <- &outcome{index: index, result: r, err: err}
		}
	}

	var (
		fatal *FatalError
		// results at or above limit are never submitted
		limit = o.Segments + 1
	)
	fail := func(index uint64, err error) {
		if fatal == nil {
			fatal = &FatalError{Segment: index, Err: err}
			runLog.WithError(err).WithField("seg", index).Error("ledger run aborted")
		}
		if index < limit {
			limit = index
		}
		cancel()
	}
	for received := 0; received < total; received++ {
		out := <-results
		if out.err != nil {
			fail(out.index, out.err)
			continue
		}
		if out.index >= limit {
			continue
		}
		before := closer.Next()
		if err := closer.Submit(out.result); err != nil {
			fail(closer.Next(), err)
			continue
		}
		for i := before; i < closer.Next(); i++ {
			o.Metrics.SegmentCommitted(time.Since(dispatched[i]))
		}
	}
	pool.WaitAll()

	if fatal != nil {
		runLog.WithFields(log.Fields{
			"committed": closer.Committed(),
			"pending":   closer.Pending(),
		}).Warn("progress stopped before the failed segment")
		return nil, fatal
	}
	return finish(closer)
}

func finish(closer *Closer) (*types.Summary, error) {
	s, err := closer.Finish()
	if err != nil {
		return nil, &FatalError{Segment: closer.Next(), Err: err}
	}
	return s, nil
}

func produce(ctx context.Context, w segment.Worker, index uint64, retries int,
	m *metric.Ledger, runLog *log.Entry) (r *segment.Result, err error) {
	tm := timer.NewTimer()
	for attempt := 0; ; attempt++ {
		r, err = w.Produce(ctx, index)
		tm.Add("produce")
		if err == nil {
			runLog.WithField("seg", index).WithFields(tm.ToLogFields()).Debug("segment ready")
			return
		}
		if !segment.IsRetryable(err) || attempt >= retries || ctx.Err() != nil {
			return
		}
		m.SegmentRetried()
		runLog.WithError(err).WithFields(log.Fields{
			"seg":     index,
			"attempt": attempt + 1,
		}).Warn("retrying segment")
	}
}
