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

package audit

import (
	"sort"

	"github.com/pkg/errors"
)

// Finding kinds.
const (
	KindOrder            = "order"
	KindLinkage          = "linkage"
	KindMissingPayload   = "missing_payload"
	KindDigestMismatch   = "digest_mismatch"
	KindCapsuleMismatch  = "capsule_mismatch"
	KindArchiveMismatch  = "archive_mismatch"
	KindTipMismatch      = "tip_mismatch"
	KindAggregateDrift   = "aggregate_drift"
	KindSegmentsMismatch = "segments_mismatch"
	KindCorruptEntry     = "corrupt_entry"
)

// Finding is one discrepancy between the journal, the store and the summary.
type Finding struct {
	Kind   string `json:"kind"`
	Seg    uint64 `json:"seg"`
	CID    string `json:"cid,omitempty"`
	Detail string `json:"detail"`
}

// Report is the outcome of one audit pass.
type Report struct {
	Domain   string     `json:"domain"`
	Segments uint64     `json:"segments"`
	Tip      string     `json:"tip"`
	Rev      float64    `json:"rev_total"`
	Cost     float64    `json:"cost_total"`
	Supply   *float64   `json:"supply,omitempty"`
	Findings []*Finding `json:"findings"`
	// Orphans lists store files no journal line references.
	Orphans []string `json:"orphans"`
}

func (r *Report) add(kind string, seg uint64, cid, detail string) {
	r.Findings = append(r.Findings, &Finding{Kind: kind, Seg: seg, CID: cid, Detail: detail})
}

func (r *Report) sort() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		return r.Findings[i].Seg < r.Findings[j].Seg
	})
	sort.Strings(r.Orphans)
}

// First returns the finding at the lowest segment, or nil.
func (r *Report) First() *Finding {
	if len(r.Findings) == 0 {
		return nil
	}
	return r.Findings[0]
}

// Count returns the number of findings of kind.
func (r *Report) Count(kind string) (n int) {
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return
}

// Err returns ErrAuditDrift describing the first finding, or nil.
func (r *Report) Err() error {
	f := r.First()
	if f == nil {
		return nil
	}
	return errors.Wrapf(ErrAuditDrift, "%d findings, first %s at segment %d: %s",
		len(r.Findings), f.Kind, f.Seg, f.Detail)
}
