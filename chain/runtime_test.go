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
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/clock"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/journal"
	"github.com/Jvryan92/epochcore-RAS-sub008/metric"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

func runOptions(dir, domain string, segments uint64, cycles int, seed string) *Options {
	d, err := segment.ByName(domain, nil)
	So(err, ShouldBeNil)
	s, err := capsule.NewStore(dir, nil)
	So(err, ShouldBeNil)
	return &Options{
		Domain:   d,
		Store:    s,
		Segments: segments,
		Cycles:   cycles,
		Seed:     seed,
		Workers:  4,
		Retries:  3,
		Clock:    clock.Epoch(testEpoch, time.Second),
		Metrics:  metric.NewLedger(domain),
	}
}

func readJournal(dir, domain string) []*journal.Record {
	records, err := journal.ReadAll(journal.Path(dir, domain))
	So(err, ShouldBeNil)
	return records
}

func checkLinkage(records []*journal.Record, domain, seed string) string {
	tip := hash.Genesis(nil, domain, seed)
	prev := types.GenesisPrev
	for i, r := range records {
		So(r.Entry.Seg, ShouldEqual, i+1)
		So(r.Entry.Prev, ShouldEqual, prev)
		prev = r.Entry.SHA
		tip = hash.Fold(nil, tip, r.Entry.SHA)
	}
	return tip
}

func TestRunScenarios(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("a minimal saas run links one capsule to genesis", t, func() {
		dir := t.TempDir()
		s, err := Run(context.Background(), runOptions(dir, conf.DomainSaaS, 1, 1, "T"))
		So(err, ShouldBeNil)

		records := readJournal(dir, conf.DomainSaaS)
		So(records, ShouldHaveLength, 1)
		e := records[0].Entry
		So(e.Prev, ShouldEqual, "genesis")
		So(e.Kind(), ShouldEqual, types.KindSaaS)

		want := hash.HashHex([]byte(hash.HashHex([]byte("saas:T")) + ":" + e.SHA))
		So(s.ChainLast, ShouldEqual, want)
		So(s.Segments, ShouldEqual, 1)

		raw, err := ioutil.ReadFile(filepath.Join(dir, "saas_summary.json"))
		So(err, ShouldBeNil)
		var doc map[string]interface{}
		So(json.Unmarshal(raw, &doc), ShouldBeNil)
		So(doc["chain_last"], ShouldEqual, want)
		So(doc, ShouldContainKey, "rev_total")
		So(doc, ShouldContainKey, "cost_total")
		So(doc, ShouldContainKey, "gross_margin")

		payload, err := ioutil.ReadFile(filepath.Join(dir, e.Event.(*types.SaaSEvent).SKU+".json"))
		So(err, ShouldBeNil)
		So(hash.HashHex(payload), ShouldEqual, e.SHA)
		_, err = os.Stat(filepath.Join(dir, e.Event.(*types.SaaSEvent).SKU+".zip"))
		So(err, ShouldBeNil)
	})

	Convey("a multi segment market run is ordered and consistent", t, func() {
		dir := t.TempDir()
		s, err := Run(context.Background(), runOptions(dir, conf.DomainMarket, 3, 2, "epochcore"))
		So(err, ShouldBeNil)

		records := readJournal(dir, conf.DomainMarket)
		So(records, ShouldHaveLength, 3)
		So(checkLinkage(records, "market", "epochcore"), ShouldEqual, s.ChainLast)

		var rev, payout float64
		var last time.Time
		for _, r := range records {
			ts, err := types.ParseTime(r.Entry.TS)
			So(err, ShouldBeNil)
			So(ts.After(last), ShouldBeTrue)
			last = ts
			ev := r.Entry.Event.(*types.MarketEvent)
			rev += ev.Rev
			payout += ev.Payout
		}
		So(s.Margin, ShouldEqual, s.Rev-s.Cost)
		So(s.Rev, ShouldAlmostEqual, rev, 1e-2)
		So(s.Cost, ShouldAlmostEqual, payout, 1e-2)
	})

	Convey("completion order does not change the journal", t, func() {
		seqDir := t.TempDir()
		seq := runOptions(seqDir, conf.DomainMarket, 3, 2, "P")
		seq.Workers = 1
		want, err := Run(context.Background(), seq)
		So(err, ShouldBeNil)

		dir := t.TempDir()
		o := runOptions(dir, conf.DomainMarket, 3, 2, "P")
		o.Workers = 3
		producer := segment.NewProducer(o.Domain, o.Store, o.Cycles)
		done := map[uint64]chan struct{}{1: make(chan struct{}), 2: make(chan struct{}), 3: make(chan struct{})}
		wait := map[uint64]uint64{1: 3, 2: 1}
		var (
			mu       sync.Mutex
			finished []uint64
		)
		o.Worker = segment.WorkerFunc(func(ctx context.Context, index uint64) (*segment.Result, error) {
			if before, ok := wait[index]; ok {
				<-done[before]
			}
			r, err := producer.Produce(ctx, index)
			mu.Lock()
			finished = append(finished, index)
			mu.Unlock()
			close(done[index])
			return r, err
		})
		got, err := Run(context.Background(), o)
		So(err, ShouldBeNil)
		So(finished, ShouldResemble, []uint64{3, 1, 2})
		So(got.ChainLast, ShouldEqual, want.ChainLast)

		a, err := ioutil.ReadFile(journal.Path(seqDir, "market"))
		So(err, ShouldBeNil)
		b, err := ioutil.ReadFile(journal.Path(dir, "market"))
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, string(a))
	})

	Convey("a resumed run appends without touching existing lines", t, func() {
		dir := t.TempDir()
		first, err := Run(context.Background(), runOptions(dir, conf.DomainSaaS, 2, 3, "epochcore"))
		So(err, ShouldBeNil)
		before := readJournal(dir, conf.DomainSaaS)
		So(before, ShouldHaveLength, 2)
		So(checkLinkage(before, "saas", "epochcore"), ShouldEqual, first.ChainLast)

		second, err := Run(context.Background(), runOptions(dir, conf.DomainSaaS, 4, 3, "epochcore"))
		So(err, ShouldBeNil)
		after := readJournal(dir, conf.DomainSaaS)
		So(after, ShouldHaveLength, 4)
		So(string(after[0].Raw), ShouldEqual, string(before[0].Raw))
		So(string(after[1].Raw), ShouldEqual, string(before[1].Raw))
		So(checkLinkage(after, "saas", "epochcore"), ShouldEqual, second.ChainLast)
		So(second.Segments, ShouldEqual, 4)

		again, err := Run(context.Background(), runOptions(dir, conf.DomainSaaS, 3, 3, "epochcore"))
		So(err, ShouldBeNil)
		So(again, ShouldResemble, second)
		So(readJournal(dir, conf.DomainSaaS), ShouldHaveLength, 4)
	})

	Convey("identical configurations produce identical stores", t, func() {
		dirs := []string{t.TempDir(), t.TempDir()}
		for _, dir := range dirs {
			_, err := Run(context.Background(), runOptions(dir, conf.DomainSaaS, 5, 2, "D"))
			So(err, ShouldBeNil)
		}
		entries, err := ioutil.ReadDir(dirs[0])
		So(err, ShouldBeNil)
		other, err := ioutil.ReadDir(dirs[1])
		So(err, ShouldBeNil)
		So(len(other), ShouldEqual, len(entries))
		// journal, summary, and per segment capsule, payload and archive
		So(entries, ShouldHaveLength, 2+5*3)
		for _, e := range entries {
			a, err := ioutil.ReadFile(filepath.Join(dirs[0], e.Name()))
			So(err, ShouldBeNil)
			b, err := ioutil.ReadFile(filepath.Join(dirs[1], e.Name()))
			So(err, ShouldBeNil)
			So(b, ShouldResemble, a)
		}
	})
}

func TestRunFailures(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("transient failures are retried with the same index", t, func() {
		dir := t.TempDir()
		o := runOptions(dir, conf.DomainMesh, 3, 2, "F")
		producer := segment.NewProducer(o.Domain, o.Store, o.Cycles)
		var (
			mu       sync.Mutex
			attempts = map[uint64]int{}
		)
		o.Worker = segment.WorkerFunc(func(ctx context.Context, index uint64) (*segment.Result, error) {
			mu.Lock()
			attempts[index]++
			n := attempts[index]
			mu.Unlock()
			if index == 2 && n <= 2 {
				return nil, segment.Retryable(errors.New("disk busy"))
			}
			return producer.Produce(ctx, index)
		})
		s, err := Run(context.Background(), o)
		So(err, ShouldBeNil)
		So(s.Segments, ShouldEqual, 3)
		So(attempts[2], ShouldEqual, 3)

		path := filepath.Join(t.TempDir(), "metrics.prom")
		So(o.Metrics.WriteTextfile(path), ShouldBeNil)
		text, err := ioutil.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(text), ShouldContainSubstring, `ledger_segment_retries_total{domain="meshcredit"} 2`)
		So(string(text), ShouldContainSubstring, `ledger_segments_committed_total{domain="meshcredit"} 3`)
	})

	Convey("exhausted retries abort the run", t, func() {
		dir := t.TempDir()
		o := runOptions(dir, conf.DomainMesh, 3, 2, "F")
		o.Retries = 1
		o.Workers = 1
		producer := segment.NewProducer(o.Domain, o.Store, o.Cycles)
		o.Worker = segment.WorkerFunc(func(ctx context.Context, index uint64) (*segment.Result, error) {
			if index == 2 {
				return nil, segment.Retryable(errors.New("disk busy"))
			}
			return producer.Produce(ctx, index)
		})
		_, err := Run(context.Background(), o)
		var fe *FatalError
		So(errors.As(err, &fe), ShouldBeTrue)
		So(fe.Segment, ShouldEqual, 2)
		So(segment.IsRetryable(err), ShouldBeTrue)
		So(readJournal(dir, conf.DomainMesh), ShouldHaveLength, 1)
	})

	Convey("a fatal failure never advances past the failed segment", t, func() {
		dir := t.TempDir()
		boom := errors.New("boom")
		o := runOptions(dir, conf.DomainMarket, 4, 1, "F")
		o.Workers = 1
		producer := segment.NewProducer(o.Domain, o.Store, o.Cycles)
		o.Worker = segment.WorkerFunc(func(ctx context.Context, index uint64) (*segment.Result, error) {
			if index == 2 {
				return nil, boom
			}
			return producer.Produce(ctx, index)
		})
		_, err := Run(context.Background(), o)
		var fe *FatalError
		So(errors.As(err, &fe), ShouldBeTrue)
		So(fe.Segment, ShouldEqual, 2)
		So(errors.Is(err, boom), ShouldBeTrue)
		So(readJournal(dir, conf.DomainMarket), ShouldHaveLength, 1)
		_, err = ioutil.ReadFile(filepath.Join(dir, SummaryName("market")))
		So(err, ShouldNotBeNil)

		Convey("the next run resumes from the last committed segment", func() {
			s, err := Run(context.Background(), runOptions(dir, conf.DomainMarket, 4, 1, "F"))
			So(err, ShouldBeNil)
			records := readJournal(dir, conf.DomainMarket)
			So(records, ShouldHaveLength, 4)
			So(checkLinkage(records, "market", "F"), ShouldEqual, s.ChainLast)
		})
	})

	Convey("a cancelled context stops the run", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, runOptions(t.TempDir(), conf.DomainSaaS, 3, 1, "C"))
		var fe *FatalError
		So(errors.As(err, &fe), ShouldBeTrue)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})

	Convey("runs need a domain and a store", t, func() {
		_, err := Run(context.Background(), &Options{})
		So(errors.Is(err, ErrInvalidOptions), ShouldBeTrue)
	})
}

func TestNewOptions(t *testing.T) {
	Convey("options follow the configuration", t, func() {
		cfg, err := conf.LoadFromEnv(conf.Defaults(conf.DomainMarket), map[string]string{
			"OUTDIR": t.TempDir(),
			"SEG":    "2",
			"CPS":    "1",
			"EPOCH":  "2025-01-01T00:00:00Z",
		})
		So(err, ShouldBeNil)
		o, err := NewOptions(cfg)
		So(err, ShouldBeNil)
		So(o.Domain.Name(), ShouldEqual, "market")
		So(o.Segments, ShouldEqual, 2)
		_, ok := o.Clock.(clock.Sequencer)
		So(ok, ShouldBeTrue)

		s, err := Run(context.Background(), o)
		So(err, ShouldBeNil)
		So(s.TS, ShouldEqual, "2025-01-01T00:00:03Z")

		cfg.Domain = "flash"
		_, err = NewOptions(cfg)
		So(errors.Is(err, segment.ErrUnknownDomain), ShouldBeTrue)
	})
}
