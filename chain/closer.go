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

// Package chain links produced segments into the journal in index order and
// drives the bounded worker pool producing them.
package chain

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/clock"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/journal"
	"github.com/Jvryan92/epochcore-RAS-sub008/metric"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

const summarySuffix = "_summary.json"

// SummaryName returns the summary file name of domain.
func SummaryName(domain string) string {
	return domain + summarySuffix
}

// CloserConfig holds the collaborators of a Closer.
type CloserConfig struct {
	Domain   string
	Seed     string
	Columns  types.Columns
	Store    *capsule.Store
	Clock    clock.Clock
	Digester hash.Digester
	// MaxPending bounds the reorder buffer when positive.
	MaxPending int
	Metrics    *metric.Ledger
}

// Closer is the single writer of a domain journal. It is not safe for
// concurrent use; one goroutine owns it.
type Closer struct {
	cfg     CloserConfig
	journal *journal.Journal
	log     *log.Entry

	next    uint64
	prev    string
	tip     string
	lastTS  time.Time
	rev     float64
	cost    float64
	cids    map[string]uint64
	pending []*segment.Result
}

// NewCloser opens and locks the domain journal under the store directory and
// recovers the chain state from its existing lines.
func NewCloser(cfg CloserConfig) (c *Closer, err error) {
	if cfg.Store == nil || cfg.Domain == "" || !cfg.Columns.Valid() {
		return nil, errors.Wrap(ErrInvalidOptions, "closer needs a store, a domain and summary columns")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Digester == nil {
		cfg.Digester = hash.SHA256
	}

	path := journal.Path(cfg.Store.Base(), cfg.Domain)
	j, err := journal.Open(path)
	if err != nil {
		return
	}
	c = &Closer{
		cfg:     cfg,
		journal: j,
		log:     log.WithField("domain", cfg.Domain),
		next:    1,
		prev:    types.GenesisPrev,
		tip:     hash.Genesis(cfg.Digester, cfg.Domain, cfg.Seed),
		cids:    make(map[string]uint64),
	}
	if err = c.recover(path); err != nil {
		j.Close()
		return nil, err
	}
	return
}

func (c *Closer) recover(path string) error {
	records, err := journal.ReadAll(path)
	if err != nil {
		return err
	}
	for _, r := range records {
		e := r.Entry
		switch {
		case e.Seg != c.next:
			return errors.Wrapf(ErrBrokenChain, "line %d: seg %d, want %d", r.Line, e.Seg, c.next)
		case e.Prev != c.prev:
			return errors.Wrapf(ErrBrokenChain, "line %d: prev %s, want %s", r.Line, e.Prev, c.prev)
		}
		if _, dup := c.cids[e.CID]; dup {
			return errors.Wrapf(ErrBrokenChain, "line %d: duplicate cid %s", r.Line, e.CID)
		}
		ts, err := types.ParseTime(e.TS)
		if err != nil {
			return errors.Wrapf(ErrBrokenChain, "line %d: bad ts %q", r.Line, e.TS)
		}
		if ts.Before(c.lastTS) {
			return errors.Wrapf(ErrBrokenChain, "line %d: ts %s before %s", r.Line, e.TS, types.FormatTime(c.lastTS))
		}
		c.advance(e, ts)
	}
	if len(records) > 0 {
		c.log.WithFields(log.Fields{
			"segments": c.next - 1,
			"tip":      c.tip,
		}).Info("recovered journal")
	}
	c.cfg.Metrics.SetChain(c.next-1, c.rev, c.cost)
	return nil
}

func (c *Closer) advance(e *types.Entry, ts time.Time) {
	rev, cost := e.Event.Amounts()
	c.rev += rev
	c.cost += cost
	c.cids[e.CID] = e.Seg
	c.prev = e.SHA
	c.tip = hash.Fold(c.cfg.Digester, c.tip, e.SHA)
	c.lastTS = ts
	c.next = e.Seg + 1
}

// Next returns the index the closer commits next.
func (c *Closer) Next() uint64 { return c.next }

// Committed returns the number of journal lines.
func (c *Closer) Committed() uint64 { return c.next - 1 }

// Tip returns the current chain tip.
func (c *Closer) Tip() string { return c.tip }

// Prev returns the sha the next capsule links to.
func (c *Closer) Prev() string { return c.prev }

// Pending returns the number of buffered out of order results.
func (c *Closer) Pending() int { return len(c.pending) }

// Totals returns the unrounded revenue and cost folded over the journal.
func (c *Closer) Totals() (rev, cost float64) { return c.rev, c.cost }

// Submit buffers r and commits every result contiguous with the journal.
func (c *Closer) Submit(r *segment.Result) error {
	if r == nil || r.Capsule == nil || r.Capsule.Event == nil {
		return ErrInvalidResult
	}
	if r.Index < c.next {
		return errors.Wrapf(ErrOrderViolation, "segment %d already committed", r.Index)
	}

	i := sort.Search(len(c.pending), func(i int) bool {
		return c.pending[i].Index >= r.Index
	})
	if i < len(c.pending) && c.pending[i].Index == r.Index {
		return errors.Wrapf(ErrOrderViolation, "segment %d delivered twice", r.Index)
	}
	c.pending = append(c.pending, nil)
	copy(c.pending[i+1:], c.pending[i:])
	c.pending[i] = r

	for len(c.pending) > 0 && c.pending[0].Index == c.next {
		if err := c.commit(c.pending[0]); err != nil {
			return err
		}
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	c.cfg.Metrics.SetPending(len(c.pending))

	if c.cfg.MaxPending > 0 && len(c.pending) > c.cfg.MaxPending {
		return errors.Wrapf(ErrOrderViolation, "%d segments waiting for segment %d", len(c.pending), c.next)
	}
	return nil
}

// stamp returns the timestamp of seq. With strict set the result is at least
// one second past the last commit, otherwise it is never before it.
func (c *Closer) stamp(seq uint64, strict bool) time.Time {
	var t time.Time
	if s, ok := c.cfg.Clock.(clock.Sequencer); ok {
		t = s.At(seq)
	} else {
		t = c.cfg.Clock.Now()
	}
	t = t.UTC().Truncate(time.Second)
	switch {
	case c.lastTS.IsZero():
	case strict && !t.After(c.lastTS):
		t = c.lastTS.Add(time.Second)
	case t.Before(c.lastTS):
		t = c.lastTS
	}
	return t
}

func (c *Closer) commit(r *segment.Result) (err error) {
	cp := *r.Capsule
	cp.Seg = r.Index
	cp.Prev = c.prev
	if seg, dup := c.cids[cp.CID]; dup {
		return errors.Wrapf(ErrOrderViolation, "cid %s already committed by segment %d", cp.CID, seg)
	}
	ts := c.stamp(r.Index, true)
	cp.TS = types.FormatTime(ts)

	if err = c.cfg.Store.VerifyPayload(cp.PayloadRef, cp.SHA); err != nil {
		return
	}
	if err = c.cfg.Store.PutCapsule(&cp); err != nil {
		return
	}
	entry := cp.Entry()
	if _, err = c.journal.Append(entry); err != nil {
		return
	}
	c.advance(entry, ts)
	c.cfg.Metrics.SetChain(c.next-1, c.rev, c.cost)

	c.log.WithFields(log.Fields{
		"seg": r.Index,
		"cid": cp.CID,
		"sha": cp.SHA,
		"tip": c.tip,
	}).Debug("segment committed")
	return
}

// Finish checks that no segment is still waiting and writes the summary.
func (c *Closer) Finish() (s *types.Summary, err error) {
	if len(c.pending) > 0 {
		return nil, errors.Wrapf(ErrOrderViolation, "segment %d never arrived, %d waiting", c.next, len(c.pending))
	}
	ts := c.stamp(c.next, false)
	s = types.NewSummary(c.cfg.Columns, types.FormatTime(ts), c.next-1, c.rev, c.cost, c.tip)
	raw, err := types.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode summary")
	}
	if err = c.cfg.Store.WriteFile(SummaryName(c.cfg.Domain), raw); err != nil {
		return nil, errors.Wrap(err, "write summary")
	}
	c.log.WithFields(log.Fields{
		"segments": s.Segments,
		"tip":      s.ChainLast,
	}).Info("summary written")
	return
}

// Close releases the journal.
func (c *Closer) Close() error {
	return c.journal.Close()
}
