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
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

const (
	saasOverageRate = 1.5
	saasCostRate    = 0.35
	saasSeatCost    = 0.05
	saasMaxLicenses = 12
)

var saasColumns = types.Columns{Rev: "rev", Cost: "cost", Margin: "gross_margin"}

// SaaS meters subscription usage against a weighted plan.
type SaaS struct {
	plans  []conf.Plan
	weight float64
}

type saasCycle struct {
	Cycle   int     `json:"cycle"`
	Usage   int     `json:"usage"`
	Overage int     `json:"overage"`
	Users   int     `json:"users"`
	Rev     float64 `json:"rev"`
	Cost    float64 `json:"cost"`
}

type saasPayload struct {
	SKU         string       `json:"sku"`
	CID         string       `json:"cid"`
	Seg         uint64       `json:"seg"`
	Plan        string       `json:"plan"`
	Quota       float64      `json:"quota"`
	PPC         float64      `json:"ppc"`
	Cycles      []*saasCycle `json:"cycles"`
	Licenses    []string     `json:"licenses"`
	Rev         float64      `json:"rev"`
	Cost        float64      `json:"cost"`
	GrossMargin float64      `json:"gross_margin"`
}

// NewSaaS builds the SaaS simulator from the profile plans.
func NewSaaS(p *conf.Profile) (*SaaS, error) {
	if len(p.Plans) == 0 {
		return nil, errors.Wrap(ErrEmptyProfile, "saas plans")
	}
	s := &SaaS{plans: p.Plans}
	for _, pl := range p.Plans {
		s.weight += pl.Weight
	}
	if s.weight <= 0 {
		return nil, errors.Wrap(ErrEmptyProfile, "saas plan weights")
	}
	return s, nil
}

// Name implements Domain.Name.
func (s *SaaS) Name() string { return conf.DomainSaaS }

// Prefix implements Domain.Prefix.
func (s *SaaS) Prefix() string { return "SAAS" }

// SeedBase implements Domain.SeedBase.
func (s *SaaS) SeedBase() int64 { return 2000 }

// Kind implements Domain.Kind.
func (s *SaaS) Kind() types.EventKind { return types.KindSaaS }

// Columns implements Domain.Columns.
func (s *SaaS) Columns() types.Columns { return saasColumns }

func (s *SaaS) pick(rng *rand.Rand) conf.Plan {
	r := rng.Float64() * s.weight
	for _, pl := range s.plans {
		if r < pl.Weight {
			return pl
		}
		r -= pl.Weight
	}
	return s.plans[len(s.plans)-1]
}

func licenseKey(rng *rand.Rand) string {
	return fmt.Sprintf("LIC-%04X-%04X-%04X", rng.Intn(1<<16), rng.Intn(1<<16), rng.Intn(1<<16))
}

// Simulate implements Domain.Simulate. Every cycle is recorded in the payload.
func (s *SaaS) Simulate(rng *rand.Rand, cid string, index uint64, cycles int) (*Segment, error) {
	plan := s.pick(rng)
	sku := fmt.Sprintf("SAAS-%s-SEG%d", strings.ToUpper(plan.Name), index)
	p := &saasPayload{
		SKU:    sku,
		CID:    cid,
		Seg:    index,
		Plan:   plan.Name,
		Quota:  plan.Quota,
		PPC:    plan.PPC,
		Cycles: make([]*saasCycle, 0, cycles),
	}

	quota := int(math.Floor(plan.Quota))
	low := int(math.Floor(0.3 * plan.Quota))
	var rev, cost float64
	for c := 1; c <= cycles; c++ {
		usage := low + rng.Intn(quota-low+1)
		overage := usage - quota
		if overage < 0 {
			overage = 0
		}
		users := rng.Intn(196) + 5
		cy := &saasCycle{
			Cycle:   c,
			Usage:   usage,
			Overage: overage,
			Users:   users,
			Rev:     types.Round6(plan.Quota*plan.PPC + float64(overage)*plan.PPC*saasOverageRate),
			Cost:    types.Round6(float64(usage)*plan.PPC*saasCostRate + float64(users)*saasSeatCost),
		}
		p.Cycles = append(p.Cycles, cy)
		rev += cy.Rev
		cost += cy.Cost
	}

	n := rng.Intn(saasMaxLicenses) + 1
	p.Licenses = make([]string, 0, n)
	for i := 0; i < n; i++ {
		p.Licenses = append(p.Licenses, licenseKey(rng))
	}

	p.Rev, p.Cost = types.Round6(rev), types.Round6(cost)
	p.GrossMargin = margin(p.Rev, p.Cost)

	raw, err := types.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "encode saas payload %s", cid)
	}
	return &Segment{
		CID:         cid,
		Index:       index,
		PayloadRef:  sku + ".json",
		Payload:     raw,
		ArchiveRef:  sku + ".zip",
		ArchiveName: sku + ".json",
		Summary: types.SegmentSummary{
			Rev:    p.Rev,
			Cost:   p.Cost,
			Margin: p.GrossMargin,
			Cycles: cycles,
		},
		Event: &types.SaaSEvent{
			SKU:      sku,
			Plan:     plan.Name,
			Rev:      p.Rev,
			Cost:     p.Cost,
			Licenses: n,
		},
	}, nil
}
