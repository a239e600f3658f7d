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

// Package segment simulates the cycles of one ledger segment and writes its
// payload. Workers never touch the journal.
package segment

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

// Segment is the simulated outcome of one segment index.
type Segment struct {
	CID        string
	Index      uint64
	PayloadRef string
	Payload    []byte
	// ArchiveRef and ArchiveName describe an optional zip sibling holding
	// Payload as entry ArchiveName.
	ArchiveRef  string
	ArchiveName string
	Summary     types.SegmentSummary
	Event       types.Event
}

// Domain simulates one kind of ledger.
type Domain interface {
	// Name is the file prefix of the journal and summary.
	Name() string
	// Prefix starts every capsule id of the domain.
	Prefix() string
	// SeedBase is added to the segment index to seed the segment RNG.
	SeedBase() int64
	Kind() types.EventKind
	Columns() types.Columns
	// Simulate runs cycles inner ticks for segment index. rng is private to
	// the call and already advanced past the capsule id draw.
	Simulate(rng *rand.Rand, cid string, index uint64, cycles int) (*Segment, error)
}

// ByName returns the simulator of a configured domain.
func ByName(name string, p *conf.Profile) (Domain, error) {
	if p == nil {
		p = conf.DefaultProfile()
	}
	switch name {
	case conf.DomainMarket:
		return NewMarket(p)
	case conf.DomainSaaS:
		return NewSaaS(p)
	case conf.DomainMesh:
		return NewMesh(p)
	}
	return nil, errors.Wrapf(ErrUnknownDomain, "%q", name)
}

// Columns returns the summary columns of a domain name without building
// its simulator.
func Columns(name string) (types.Columns, error) {
	switch name {
	case conf.DomainMarket:
		return marketColumns, nil
	case conf.DomainSaaS:
		return saasColumns, nil
	case conf.DomainMesh:
		return meshColumns, nil
	}
	return types.Columns{}, errors.Wrapf(ErrUnknownDomain, "%q", name)
}

// CID formats the capsule id of segment index from the first RNG draw.
func CID(prefix string, index uint64, rng *rand.Rand) string {
	return fmt.Sprintf("%s-SEG%d-%06x", prefix, index, rng.Intn(1<<24))
}

// NewRand returns the deterministic RNG of segment index.
func NewRand(d Domain, index uint64) *rand.Rand {
	return rand.New(rand.NewSource(d.SeedBase() + int64(index)))
}

func margin(rev, cost float64) float64 {
	return types.Round6(rev - cost)
}
