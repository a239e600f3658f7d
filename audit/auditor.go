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

// Package audit re-derives a ledger from its journal, store and summary and
// reports every discrepancy. Nothing under the store directory is modified.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/jmoiron/jsonq"
	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/chain"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/inventory"
	"github.com/Jvryan92/epochcore-RAS-sub008/journal"
	"github.com/Jvryan92/epochcore-RAS-sub008/metric"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

const (
	driftTolerance = 1e-2
	// supply is compared across two independently rounded totals
	supplyDriftTolerance = 2 * driftTolerance
)

// Config holds the collaborators of an Auditor.
type Config struct {
	Domain   string
	Seed     string
	Store    *capsule.Store
	Digester hash.Digester
	// Index receives every committed capsule; a MemIndex when nil.
	Index   inventory.Index
	Metrics *metric.Ledger
}

// Auditor replays one domain ledger.
type Auditor struct {
	cfg  Config
	cols types.Columns
	log  *log.Entry
}

// New returns an auditor of cfg.Domain.
func New(cfg Config) (a *Auditor, err error) {
	if cfg.Store == nil || cfg.Domain == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "auditor needs a store and a domain")
	}
	cols, err := segment.Columns(cfg.Domain)
	if err != nil {
		return
	}
	if cfg.Digester == nil {
		cfg.Digester = hash.SHA256
	}
	if cfg.Index == nil {
		cfg.Index = inventory.NewMemIndex()
	}
	return &Auditor{
		cfg:  cfg,
		cols: cols,
		log:  log.WithField("domain", cfg.Domain),
	}, nil
}

// Index returns the inventory filled by the last run.
func (a *Auditor) Index() inventory.Index {
	return a.cfg.Index
}

// Run audits the ledger. A non-nil error means the ledger could not be read
// at all; discrepancies are reported as findings.
func (a *Auditor) Run(ctx context.Context) (r *Report, err error) {
	records, bad, err := journal.Scan(journal.Path(a.cfg.Store.Base(), a.cfg.Domain))
	if err != nil {
		return
	}
	if err = a.cfg.Index.Reset(); err != nil {
		return
	}

	r = &Report{Domain: a.cfg.Domain, Findings: []*Finding{}, Orphans: []string{}}
	var (
		tip    = hash.Genesis(a.cfg.Digester, a.cfg.Domain, a.cfg.Seed)
		prev   = types.GenesisPrev
		lastTS time.Time
		cids   = make(map[string]uint64, len(records))
	)
	for _, b := range bad {
		r.add(KindCorruptEntry, uint64(b.Line), "", fmt.Sprintf("line %d undecodable: %v", b.Line, b.Err))
	}
	for _, rec := range records {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		e := rec.Entry
		want := uint64(rec.Line)

		if e.Seg != want {
			r.add(KindOrder, want, e.CID, fmt.Sprintf("line %d holds segment %d", rec.Line, e.Seg))
		}
		if ts, perr := types.ParseTime(e.TS); perr != nil {
			r.add(KindOrder, want, e.CID, fmt.Sprintf("unparseable ts %q", e.TS))
		} else {
			if !lastTS.IsZero() && !ts.After(lastTS) {
				r.add(KindOrder, want, e.CID, fmt.Sprintf("ts %s not after %s", e.TS, types.FormatTime(lastTS)))
			} else {
				lastTS = ts
			}
		}
		if seg, dup := cids[e.CID]; dup {
			r.add(KindOrder, want, e.CID, fmt.Sprintf("cid already used by segment %d", seg))
		}
		cids[e.CID] = want

		if e.Prev != prev {
			r.add(KindLinkage, want, e.CID, fmt.Sprintf("prev %s, want %s", e.Prev, prev))
		}

		item := a.checkEntry(r, want, e)
		if !a.cfg.Index.Has(e.CID) {
			item.Seg = want
			if perr := a.cfg.Index.Put(item); perr != nil && perr != inventory.ErrAlreadyExists {
				return nil, errors.Wrapf(perr, "index segment %d", want)
			}
		}

		prev = e.SHA
		tip = hash.Fold(a.cfg.Digester, tip, e.SHA)
		rev, cost := e.Event.Amounts()
		r.Rev += rev
		r.Cost += cost
	}
	r.Segments = uint64(len(records) + len(bad))
	r.Tip = tip
	r.Rev, r.Cost = types.Round6(r.Rev), types.Round6(r.Cost)

	if err = a.checkSummary(r); err != nil {
		return nil, err
	}
	if err = a.collectOrphans(r); err != nil {
		return nil, err
	}
	r.sort()

	for _, f := range r.Findings {
		a.cfg.Metrics.Finding(f.Kind)
	}
	entry := a.log.WithFields(log.Fields{
		"segments": r.Segments,
		"findings": len(r.Findings),
		"orphans":  len(r.Orphans),
		"tip":      r.Tip,
	})
	if len(r.Findings) > 0 {
		entry.Warn("audit found drift")
	} else {
		entry.Info("audit clean")
	}
	return
}

// payloadRef guesses the payload name of an entry whose capsule record is
// unusable.
func payloadRef(e *types.Entry) string {
	if ev, ok := e.Event.(*types.SaaSEvent); ok && ev.SKU != "" {
		return ev.SKU + ".json"
	}
	return e.CID + "_payload.json"
}

func archiveRef(e *types.Entry) string {
	if ev, ok := e.Event.(*types.SaaSEvent); ok && ev.SKU != "" {
		return ev.SKU + ".zip"
	}
	return ""
}

func (a *Auditor) checkEntry(r *Report, seg uint64, e *types.Entry) *inventory.Item {
	ref := payloadRef(e)

	cp, err := a.cfg.Store.ReadCapsule(e.CID)
	switch {
	case errors.Is(err, capsule.ErrNotFound):
		r.add(KindCapsuleMismatch, seg, e.CID, "capsule record missing")
	case err != nil:
		r.add(KindCapsuleMismatch, seg, e.CID, fmt.Sprintf("capsule record unreadable: %v", err))
	default:
		ref = cp.PayloadRef
		got, gerr := types.Marshal(cp.Entry())
		exp, eerr := types.Marshal(e)
		if gerr != nil || eerr != nil || !bytes.Equal(got, exp) {
			r.add(KindCapsuleMismatch, seg, e.CID, "capsule record disagrees with journal")
		}
	}

	data, err := a.cfg.Store.ReadPayload(ref)
	switch {
	case errors.Is(err, capsule.ErrMissingPayload), errors.Is(err, capsule.ErrInvalidName):
		r.add(KindMissingPayload, seg, e.CID, fmt.Sprintf("payload %s missing", ref))
	case err != nil:
		r.add(KindMissingPayload, seg, e.CID, fmt.Sprintf("payload %s unreadable: %v", ref, err))
	default:
		if got := a.cfg.Digester.Digest(data); got != e.SHA {
			r.add(KindDigestMismatch, seg, e.CID, fmt.Sprintf("payload %s digests to %s, journal says %s", ref, got, e.SHA))
		}
	}

	item := inventory.NewItem(e, ref)
	if zref := archiveRef(e); zref != "" {
		item.ArchiveRef = zref
		_, zdata, zerr := a.cfg.Store.ReadArchive(zref)
		switch {
		case zerr != nil:
			r.add(KindArchiveMismatch, seg, e.CID, fmt.Sprintf("archive %s unreadable: %v", zref, zerr))
		case a.cfg.Digester.Digest(zdata) != e.SHA:
			r.add(KindArchiveMismatch, seg, e.CID, fmt.Sprintf("archive %s differs from payload", zref))
		}
	}
	return item
}

func (a *Auditor) checkSummary(r *Report) error {
	raw, err := a.cfg.Store.ReadFile(chain.SummaryName(a.cfg.Domain))
	if err != nil {
		if os.IsNotExist(err) {
			if r.Segments > 0 {
				r.add(KindTipMismatch, r.Segments, "", "summary missing")
			}
			return nil
		}
		return errors.Wrap(err, "read summary")
	}

	data := map[string]interface{}{}
	if err = json.Unmarshal(raw, &data); err != nil {
		r.add(KindTipMismatch, r.Segments, "", fmt.Sprintf("summary unreadable: %v", err))
		return nil
	}
	jq := jsonq.NewQuery(data)

	if last, qerr := jq.String("chain_last"); qerr != nil || last != r.Tip {
		r.add(KindTipMismatch, r.Segments, "", fmt.Sprintf("summary chain_last %q, replayed %s", last, r.Tip))
	}
	if segs, qerr := jq.Int("segments"); qerr != nil || segs < 0 || uint64(segs) != r.Segments {
		r.add(KindSegmentsMismatch, r.Segments, "", fmt.Sprintf("summary segments %d, journal holds %d", segs, r.Segments))
	}

	revTotal, rerr := jq.Float(a.cols.RevKey())
	costTotal, cerr := jq.Float(a.cols.CostKey())
	marginTotal, merr := jq.Float(a.cols.Margin)
	switch {
	case rerr != nil || cerr != nil || merr != nil:
		r.add(KindAggregateDrift, r.Segments, "", "summary totals missing")
	default:
		if math.Abs(revTotal-r.Rev) > driftTolerance {
			r.add(KindAggregateDrift, r.Segments, "", fmt.Sprintf("%s %.2f, journal folds to %.6f", a.cols.RevKey(), revTotal, r.Rev))
		}
		if math.Abs(costTotal-r.Cost) > driftTolerance {
			r.add(KindAggregateDrift, r.Segments, "", fmt.Sprintf("%s %.2f, journal folds to %.6f", a.cols.CostKey(), costTotal, r.Cost))
		}
		if math.Abs(marginTotal-(revTotal-costTotal)) > driftTolerance {
			r.add(KindAggregateDrift, r.Segments, "", fmt.Sprintf("%s %.2f inconsistent with totals", a.cols.Margin, marginTotal))
		}
	}

	if a.cfg.Domain == conf.DomainMesh {
		supply, serr := Supply(a.cfg.Store.Base())
		if serr != nil {
			return serr
		}
		r.Supply = &supply
		if merr == nil && math.Abs(supply-marginTotal) > supplyDriftTolerance {
			r.add(KindAggregateDrift, r.Segments, "", fmt.Sprintf("supply %.6f, summary says %.2f", supply, marginTotal))
		}
	}
	return nil
}

func (a *Auditor) collectOrphans(r *Report) error {
	err := a.cfg.Store.IterCapsules(func(c *types.Capsule) error {
		if !a.cfg.Index.Has(c.CID) {
			r.Orphans = append(r.Orphans, c.CID+".json")
		}
		return nil
	})
	if err != nil {
		return err
	}
	refs, err := a.cfg.Store.ListPayloads()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if !a.cfg.Index.HasRef(ref) {
			r.Orphans = append(r.Orphans, ref)
		}
	}
	return nil
}
