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

var meshColumns = types.Columns{Rev: "mint", Cost: "burn", Margin: "supply"}

// Mesh fires automation triggers round robin, one trigger per segment, and
// mints and burns MeshCredit for every action the trigger runs.
type Mesh struct {
	triggers []string
}

type meshAction struct {
	Cycle int     `json:"cycle"`
	Mint  float64 `json:"mint"`
	Burn  float64 `json:"burn"`
}

type meshPayload struct {
	CID     string        `json:"cid"`
	Seg     uint64        `json:"seg"`
	Trigger string        `json:"trigger"`
	Actions []*meshAction `json:"actions"`
	Mint    float64       `json:"mint"`
	Burn    float64       `json:"burn"`
	Supply  float64       `json:"supply"`
}

// NewMesh builds the mesh simulator from the profile triggers.
func NewMesh(p *conf.Profile) (*Mesh, error) {
	if len(p.Triggers) == 0 {
		return nil, errors.Wrap(ErrEmptyProfile, "mesh triggers")
	}
	return &Mesh{triggers: p.Triggers}, nil
}

// Name implements Domain.Name.
func (m *Mesh) Name() string { return conf.DomainMesh }

// Prefix implements Domain.Prefix.
func (m *Mesh) Prefix() string { return "MESH" }

// SeedBase implements Domain.SeedBase.
func (m *Mesh) SeedBase() int64 { return 3000 }

// Kind implements Domain.Kind.
func (m *Mesh) Kind() types.EventKind { return types.KindMesh }

// Columns implements Domain.Columns.
func (m *Mesh) Columns() types.Columns { return meshColumns }

// Trigger returns the trigger fired by segment index.
func (m *Mesh) Trigger(index uint64) string {
	return m.triggers[(index-1)%uint64(len(m.triggers))]
}

// Simulate implements Domain.Simulate.
func (m *Mesh) Simulate(rng *rand.Rand, cid string, index uint64, cycles int) (*Segment, error) {
	p := &meshPayload{
		CID:     cid,
		Seg:     index,
		Trigger: m.Trigger(index),
		Actions: make([]*meshAction, 0, cycles),
	}
	var mint, burn float64
	for c := 1; c <= cycles; c++ {
		mt := 1 + rng.Float64()*9
		a := &meshAction{
			Cycle: c,
			Mint:  types.Round6(mt),
			Burn:  types.Round6(mt * (0.05 + rng.Float64()*0.1)),
		}
		p.Actions = append(p.Actions, a)
		mint += a.Mint
		burn += a.Burn
	}
	p.Mint, p.Burn = types.Round6(mint), types.Round6(burn)
	p.Supply = margin(p.Mint, p.Burn)

	raw, err := types.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "encode mesh payload %s", cid)
	}
	return &Segment{
		CID:        cid,
		Index:      index,
		PayloadRef: cid + "_payload.json",
		Payload:    raw,
		Summary: types.SegmentSummary{
			Rev:    p.Mint,
			Cost:   p.Burn,
			Margin: p.Supply,
			Cycles: cycles,
		},
		Event: &types.MeshEvent{
			Trigger: p.Trigger,
			Mint:    p.Mint,
			Burn:    p.Burn,
			Actions: cycles,
		},
	}, nil
}
