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
	"math/rand"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

var marketColumns = types.Columns{Rev: "rev", Cost: "payout", Margin: "gross_margin"}

// Market clears capability auctions between weighted agents.
type Market struct {
	agents []conf.Agent
	caps   []string
}

type marketTrade struct {
	Cap    string  `json:"cap"`
	Agent  string  `json:"agent"`
	Price  float64 `json:"price"`
	Demand int     `json:"demand"`
	Rev    float64 `json:"rev"`
	Take   float64 `json:"take"`
	Payout float64 `json:"payout"`
}

type marketCycle struct {
	Cycle  int            `json:"cycle"`
	Trades []*marketTrade `json:"trades"`
	Rev    float64        `json:"rev"`
	Payout float64        `json:"payout"`
}

type marketPayload struct {
	CID         string         `json:"cid"`
	Seg         uint64         `json:"seg"`
	Cycles      []*marketCycle `json:"cycles"`
	Rev         float64        `json:"rev"`
	Payout      float64        `json:"payout"`
	GrossMargin float64        `json:"gross_margin"`
}

// NewMarket builds the market simulator from the profile agents and
// capabilities.
func NewMarket(p *conf.Profile) (*Market, error) {
	if len(p.Agents) == 0 {
		return nil, errors.Wrap(ErrEmptyProfile, "market agents")
	}
	if len(p.Capabilities) == 0 {
		return nil, errors.Wrap(ErrEmptyProfile, "market capabilities")
	}
	return &Market{agents: p.Agents, caps: p.Capabilities}, nil
}

// Name implements Domain.Name.
func (m *Market) Name() string { return conf.DomainMarket }

// Prefix implements Domain.Prefix.
func (m *Market) Prefix() string { return "MKT" }

// SeedBase implements Domain.SeedBase.
func (m *Market) SeedBase() int64 { return 1000 }

// Kind implements Domain.Kind.
func (m *Market) Kind() types.EventKind { return types.KindMarket }

// Columns implements Domain.Columns.
func (m *Market) Columns() types.Columns { return marketColumns }

func (m *Market) clear(rng *rand.Rand, idx int, capability string) *marketTrade {
	var (
		best  = -1
		price float64
	)
	for i, a := range m.agents {
		bid := (0.02 + 0.03*float64(idx)) * (1.2 - rng.Float64()*0.4) / a.Weight
		if best < 0 || bid < price {
			best, price = i, bid
		}
	}
	demand := rng.Intn(27) + 4
	rev := price * float64(demand)
	if capability == "publish" {
		rev *= 1.5
	}
	take := 0.12
	if capability == "publish" || capability == "plan" {
		take += 0.03
	}
	return &marketTrade{
		Cap:    capability,
		Agent:  m.agents[best].Name,
		Price:  types.Round6(price),
		Demand: demand,
		Rev:    types.Round6(rev),
		Take:   types.Round6(take),
		Payout: types.Round6(rev * (1 - take)),
	}
}

// Simulate implements Domain.Simulate.
func (m *Market) Simulate(rng *rand.Rand, cid string, index uint64, cycles int) (*Segment, error) {
	p := &marketPayload{
		CID:    cid,
		Seg:    index,
		Cycles: make([]*marketCycle, 0, cycles),
	}
	var rev, payout float64
	for c := 1; c <= cycles; c++ {
		cy := &marketCycle{Cycle: c, Trades: make([]*marketTrade, 0, len(m.caps))}
		var cr, cp float64
		for idx, capability := range m.caps {
			t := m.clear(rng, idx, capability)
			cy.Trades = append(cy.Trades, t)
			cr += t.Rev
			cp += t.Payout
		}
		cy.Rev, cy.Payout = types.Round6(cr), types.Round6(cp)
		p.Cycles = append(p.Cycles, cy)
		rev += cy.Rev
		payout += cy.Payout
	}
	p.Rev, p.Payout = types.Round6(rev), types.Round6(payout)
	p.GrossMargin = margin(p.Rev, p.Payout)

	raw, err := types.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "encode market payload %s", cid)
	}
	return &Segment{
		CID:        cid,
		Index:      index,
		PayloadRef: cid + "_payload.json",
		Payload:    raw,
		Summary: types.SegmentSummary{
			Rev:    p.Rev,
			Cost:   p.Payout,
			Margin: p.GrossMargin,
			Cycles: cycles,
		},
		Event: &types.MarketEvent{Rev: p.Rev, Payout: p.Payout, Cycles: cycles},
	}, nil
}
