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

package segment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

// Result is a produced but not yet committed segment. Capsule is a stub:
// Prev and TS are left empty for the chain closer to assign.
type Result struct {
	Index   uint64
	Summary types.SegmentSummary
	Capsule *types.Capsule
}

// Worker produces segment results.
type Worker interface {
	Produce(ctx context.Context, index uint64) (*Result, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, index uint64) (*Result, error)

// Produce implements Worker.Produce.
func (f WorkerFunc) Produce(ctx context.Context, index uint64) (*Result, error) {
	return f(ctx, index)
}

// Producer simulates a domain and writes each segment payload to a store.
type Producer struct {
	Domain Domain
	Store  *capsule.Store
	Cycles int
}

// NewProducer returns a producer of cycles per segment.
func NewProducer(d Domain, s *capsule.Store, cycles int) *Producer {
	return &Producer{Domain: d, Store: s, Cycles: cycles}
}

// Simulate runs the domain for index without writing anything.
func (p *Producer) Simulate(index uint64) (*Segment, error) {
	if index < 1 {
		return nil, errors.Wrapf(ErrInvalidIndex, "got %d", index)
	}
	rng := NewRand(p.Domain, index)
	cid := CID(p.Domain.Prefix(), index, rng)
	return p.Domain.Simulate(rng, cid, index, p.Cycles)
}

// Produce implements Worker.Produce. Replaying an index rewrites identical
// payload bytes.
func (p *Producer) Produce(ctx context.Context, index uint64) (r *Result, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	seg, err := p.Simulate(index)
	if err != nil {
		return
	}

	sha, err := p.Store.PutPayload(seg.CID, seg.PayloadRef, seg.Payload)
	if err != nil {
		return nil, classify(err)
	}
	if seg.ArchiveRef != "" {
		if err = p.Store.PutArchive(seg.ArchiveRef, seg.ArchiveName, seg.Payload); err != nil {
			return nil, classify(err)
		}
	}

	log.WithFields(log.Fields{
		"domain": p.Domain.Name(),
		"seg":    index,
		"cid":    seg.CID,
		"sha":    sha,
	}).Debug("segment produced")

	r = &Result{
		Index:   index,
		Summary: seg.Summary,
		Capsule: &types.Capsule{
			CID:        seg.CID,
			Seg:        index,
			PayloadRef: seg.PayloadRef,
			SHA:        sha,
			Event:      seg.Event,
		},
	}
	return
}

// classify marks store write failures retryable unless a retry could not
// change the outcome.
func classify(err error) error {
	switch {
	case errors.Is(err, capsule.ErrAlreadyExists), errors.Is(err, capsule.ErrInvalidName):
		return err
	}
	return Retryable(err)
}
