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
	"io/ioutil"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/clock"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/journal"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	dir      string
	domain   segment.Domain
	store    *capsule.Store
	producer *segment.Producer
}

func newFixture(t *testing.T, domain string, cycles int) *fixture {
	d, err := segment.ByName(domain, nil)
	So(err, ShouldBeNil)
	dir := t.TempDir()
	s, err := capsule.NewStore(dir, nil)
	So(err, ShouldBeNil)
	return &fixture{dir: dir, domain: d, store: s, producer: segment.NewProducer(d, s, cycles)}
}

func (f *fixture) closer(seed string, maxPending int) (*Closer, error) {
	return NewCloser(CloserConfig{
		Domain:     f.domain.Name(),
		Seed:       seed,
		Columns:    f.domain.Columns(),
		Store:      f.store,
		Clock:      clock.Epoch(testEpoch, time.Second),
		MaxPending: maxPending,
	})
}

func (f *fixture) produce(index uint64) *segment.Result {
	r, err := f.producer.Produce(context.Background(), index)
	So(err, ShouldBeNil)
	return r
}

func (f *fixture) records() []*journal.Record {
	records, err := journal.ReadAll(journal.Path(f.dir, f.domain.Name()))
	So(err, ShouldBeNil)
	return records
}

func TestCloserOrdering(t *testing.T) {
	Convey("out of order results are committed in index order", t, func() {
		f := newFixture(t, conf.DomainMarket, 2)
		c, err := f.closer("S", 0)
		So(err, ShouldBeNil)
		defer c.Close()
		So(c.Next(), ShouldEqual, 1)
		So(c.Prev(), ShouldEqual, types.GenesisPrev)
		So(c.Tip(), ShouldEqual, hash.HashHex([]byte("market:S")))

		So(c.Submit(f.produce(3)), ShouldBeNil)
		So(c.Committed(), ShouldEqual, 0)
		So(c.Pending(), ShouldEqual, 1)
		So(c.Submit(f.produce(1)), ShouldBeNil)
		So(c.Committed(), ShouldEqual, 1)
		So(c.Pending(), ShouldEqual, 1)
		So(c.Submit(f.produce(2)), ShouldBeNil)
		So(c.Committed(), ShouldEqual, 3)
		So(c.Pending(), ShouldEqual, 0)

		records := f.records()
		So(records, ShouldHaveLength, 3)
		tip := hash.HashHex([]byte("market:S"))
		prev := types.GenesisPrev
		for i, r := range records {
			So(r.Entry.Seg, ShouldEqual, i+1)
			So(r.Entry.Prev, ShouldEqual, prev)
			So(r.Entry.TS, ShouldEqual, types.FormatTime(testEpoch.Add(time.Duration(i+1)*time.Second)))
			prev = r.Entry.SHA
			tip = hash.HashHex([]byte(tip + ":" + r.Entry.SHA))

			cp, err := f.store.GetCapsule(r.Entry.CID)
			So(err, ShouldBeNil)
			So(cp.Prev, ShouldEqual, r.Entry.Prev)
			So(cp.TS, ShouldEqual, r.Entry.TS)
		}
		So(c.Tip(), ShouldEqual, tip)
		So(c.Prev(), ShouldEqual, prev)

		Convey("the sequential order yields the same tip", func() {
			g := newFixture(t, conf.DomainMarket, 2)
			s, err := g.closer("S", 0)
			So(err, ShouldBeNil)
			defer s.Close()
			for i := uint64(1); i <= 3; i++ {
				So(s.Submit(g.produce(i)), ShouldBeNil)
			}
			So(s.Tip(), ShouldEqual, c.Tip())
		})
	})
	Convey("late, duplicate and overflowing results are order violations", t, func() {
		f := newFixture(t, conf.DomainMarket, 1)
		c, err := f.closer("S", 2)
		So(err, ShouldBeNil)
		defer c.Close()

		So(c.Submit(f.produce(1)), ShouldBeNil)
		So(errors.Is(c.Submit(f.produce(1)), ErrOrderViolation), ShouldBeTrue)
		So(c.Submit(f.produce(3)), ShouldBeNil)
		So(errors.Is(c.Submit(f.produce(3)), ErrOrderViolation), ShouldBeTrue)
		So(c.Submit(f.produce(4)), ShouldBeNil)
		So(errors.Is(c.Submit(f.produce(5)), ErrOrderViolation), ShouldBeTrue)

		_, err = c.Finish()
		So(errors.Is(err, ErrOrderViolation), ShouldBeTrue)
		So(f.records(), ShouldHaveLength, 1)

		So(c.Submit(nil), ShouldEqual, ErrInvalidResult)
		So(c.Submit(&segment.Result{Index: 2}), ShouldEqual, ErrInvalidResult)
	})
	Convey("a reused capsule id is refused", t, func() {
		f := newFixture(t, conf.DomainMarket, 1)
		c, err := f.closer("S", 0)
		So(err, ShouldBeNil)
		defer c.Close()
		r1 := f.produce(1)
		So(c.Submit(r1), ShouldBeNil)
		r2 := f.produce(2)
		r2.Capsule.CID = r1.Capsule.CID
		So(errors.Is(c.Submit(r2), ErrOrderViolation), ShouldBeTrue)
		So(f.records(), ShouldHaveLength, 1)
	})
}

func TestCloserIntegrity(t *testing.T) {
	Convey("payloads changed after production fail the commit", t, func() {
		f := newFixture(t, conf.DomainSaaS, 1)
		c, err := f.closer("T", 0)
		So(err, ShouldBeNil)
		defer c.Close()

		r := f.produce(1)
		So(ioutil.WriteFile(f.store.Path(r.Capsule.PayloadRef), []byte(`{}`), 0644), ShouldBeNil)
		err = c.Submit(r)
		So(errors.Is(err, capsule.ErrDigestMismatch), ShouldBeTrue)
		So(c.Committed(), ShouldEqual, 0)
		So(c.Prev(), ShouldEqual, types.GenesisPrev)
		So(f.records(), ShouldBeEmpty)
		_, err = f.store.GetCapsule(r.Capsule.CID)
		So(errors.Is(err, capsule.ErrNotFound), ShouldBeTrue)
	})
	Convey("timestamps never go backwards", t, func() {
		f := newFixture(t, conf.DomainMarket, 1)
		c, err := NewCloser(CloserConfig{
			Domain:  f.domain.Name(),
			Seed:    "S",
			Columns: f.domain.Columns(),
			Store:   f.store,
			Clock:   &rewindClock{at: testEpoch},
		})
		So(err, ShouldBeNil)
		defer c.Close()
		for i := uint64(1); i <= 3; i++ {
			So(c.Submit(f.produce(i)), ShouldBeNil)
		}
		records := f.records()
		So(records[0].Entry.TS, ShouldEqual, "2024-12-31T23:59:00Z")
		So(records[1].Entry.TS, ShouldEqual, "2024-12-31T23:59:01Z")
		So(records[2].Entry.TS, ShouldEqual, "2024-12-31T23:59:02Z")

		s, err := c.Finish()
		So(err, ShouldBeNil)
		So(s.TS, ShouldEqual, "2024-12-31T23:59:02Z")
	})
	Convey("commits within one clock second get increasing timestamps", t, func() {
		for _, clk := range []clock.Clock{clock.Fixed(testEpoch), clock.Real()} {
			f := newFixture(t, conf.DomainMarket, 1)
			c, err := NewCloser(CloserConfig{
				Domain:  f.domain.Name(),
				Seed:    "S",
				Columns: f.domain.Columns(),
				Store:   f.store,
				Clock:   clk,
			})
			So(err, ShouldBeNil)
			for i := uint64(1); i <= 4; i++ {
				So(c.Submit(f.produce(i)), ShouldBeNil)
			}
			So(c.Close(), ShouldBeNil)

			var last time.Time
			for _, r := range f.records() {
				ts, err := types.ParseTime(r.Entry.TS)
				So(err, ShouldBeNil)
				So(ts.After(last), ShouldBeTrue)
				last = ts
			}
		}
	})
	Convey("closers need their collaborators", t, func() {
		_, err := NewCloser(CloserConfig{Domain: "market"})
		So(errors.Is(err, ErrInvalidOptions), ShouldBeTrue)
	})
}

type rewindClock struct {
	at time.Time
}

func (c *rewindClock) Now() time.Time {
	c.at = c.at.Add(-time.Minute)
	return c.at
}

func TestCloserRecovery(t *testing.T) {
	Convey("a reopened closer continues the chain", t, func() {
		f := newFixture(t, conf.DomainMesh, 2)
		c, err := f.closer("R", 0)
		So(err, ShouldBeNil)
		So(c.Submit(f.produce(1)), ShouldBeNil)
		So(c.Submit(f.produce(2)), ShouldBeNil)
		tip, prev := c.Tip(), c.Prev()
		rev, cost := c.Totals()

		_, err = f.closer("R", 0)
		So(errors.Is(err, journal.ErrLocked), ShouldBeTrue)
		So(c.Close(), ShouldBeNil)

		c, err = f.closer("R", 0)
		So(err, ShouldBeNil)
		defer c.Close()
		So(c.Next(), ShouldEqual, 3)
		So(c.Tip(), ShouldEqual, tip)
		So(c.Prev(), ShouldEqual, prev)
		r2, c2 := c.Totals()
		So(r2, ShouldAlmostEqual, rev, 1e-9)
		So(c2, ShouldAlmostEqual, cost, 1e-9)

		So(c.Submit(f.produce(3)), ShouldBeNil)
		s, err := c.Finish()
		So(err, ShouldBeNil)
		So(s.Segments, ShouldEqual, 3)
		So(s.ChainLast, ShouldEqual, c.Tip())

		raw, err := f.store.ReadFile(SummaryName("meshcredit"))
		So(err, ShouldBeNil)
		So(string(raw), ShouldStartWith, `{"ts":"2025-01-01T00:00:04Z","segments":3,"mint_total":`)
	})
	Convey("journals with broken linkage are refused", t, func() {
		f := newFixture(t, conf.DomainMarket, 1)
		c, err := f.closer("S", 0)
		So(err, ShouldBeNil)
		So(c.Submit(f.produce(1)), ShouldBeNil)
		So(c.Submit(f.produce(2)), ShouldBeNil)
		So(c.Close(), ShouldBeNil)

		records := f.records()
		path := journal.Path(f.dir, "market")
		So(ioutil.WriteFile(path, append(append(records[1].Raw, '\n'), append(records[0].Raw, '\n')...), 0644), ShouldBeNil)
		_, err = f.closer("S", 0)
		So(errors.Is(err, ErrBrokenChain), ShouldBeTrue)

		// a different seed does not change linkage, only the tip
		So(ioutil.WriteFile(path, append(append(records[0].Raw, '\n'), append(records[1].Raw, '\n')...), 0644), ShouldBeNil)
		c, err = f.closer("other", 0)
		So(err, ShouldBeNil)
		defer c.Close()
		So(c.Next(), ShouldEqual, 3)
	})
}
