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

package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EventKind tags the domain variant carried by a capsule.
type EventKind string

const (
	// KindMarket is a capability market clearing segment.
	KindMarket EventKind = "market"
	// KindSaaS is a subscription usage and licensing segment.
	KindSaaS EventKind = "saas"
	// KindMesh is a mesh automation trigger firing with MeshCredit mint/burn.
	KindMesh EventKind = "mesh"
	// KindFlash is a flash sale burst.
	KindFlash EventKind = "flash"
	// KindAudit is an inventory audit record.
	KindAudit EventKind = "audit"
)

// KindList lists every registered event kind.
var KindList = []EventKind{KindMarket, KindSaaS, KindMesh, KindFlash, KindAudit}

// String returns the kind tag.
func (k EventKind) String() string {
	return string(k)
}

// Listed returns if the kind has a registered variant.
func (k EventKind) Listed() bool {
	_, ok := eventRegistry[k]
	return ok
}

// Event is the domain specific part of a capsule. Fields are fixed per
// variant and are opaque to the chain; Amounts exposes the figures folded
// into ledger totals.
type Event interface {
	Kind() EventKind
	Amounts() (rev, cost float64)
}

var eventRegistry = map[EventKind]func() Event{
	KindMarket: func() Event { return &MarketEvent{} },
	KindSaaS:   func() Event { return &SaaSEvent{} },
	KindMesh:   func() Event { return &MeshEvent{} },
	KindFlash:  func() Event { return &FlashEvent{} },
	KindAudit:  func() Event { return &AuditEvent{} },
}

// NewEvent returns an empty variant for kind.
func NewEvent(kind EventKind) (Event, error) {
	f, ok := eventRegistry[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEventKind, "kind %q", kind)
	}
	return f(), nil
}

// DecodeEvent decodes the variant fields of kind from a JSON object. Envelope
// keys in the same object are ignored.
func DecodeEvent(kind EventKind, raw []byte) (Event, error) {
	ev, err := NewEvent(kind)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(raw, ev); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", kind)
	}
	return ev, nil
}

// MarketEvent summarises one segment of capability market clearing.
type MarketEvent struct {
	Rev    float64 `json:"rev"`
	Payout float64 `json:"payout"`
	Cycles int     `json:"cycles"`
}

// Kind implements Event.Kind.
func (e *MarketEvent) Kind() EventKind { return KindMarket }

// Amounts implements Event.Amounts.
func (e *MarketEvent) Amounts() (float64, float64) { return e.Rev, e.Payout }

// SaaSEvent summarises one segment of subscription usage.
type SaaSEvent struct {
	SKU      string  `json:"sku"`
	Plan     string  `json:"plan"`
	Rev      float64 `json:"rev"`
	Cost     float64 `json:"cost"`
	Licenses int     `json:"licenses"`
}

// Kind implements Event.Kind.
func (e *SaaSEvent) Kind() EventKind { return KindSaaS }

// Amounts implements Event.Amounts.
func (e *SaaSEvent) Amounts() (float64, float64) { return e.Rev, e.Cost }

// MeshEvent records one trigger firing and the MeshCredit it minted and burned.
type MeshEvent struct {
	Trigger string  `json:"trigger"`
	Mint    float64 `json:"mint"`
	Burn    float64 `json:"burn"`
	Actions int     `json:"actions"`
}

// Kind implements Event.Kind.
func (e *MeshEvent) Kind() EventKind { return KindMesh }

// Amounts implements Event.Amounts.
func (e *MeshEvent) Amounts() (float64, float64) { return e.Mint, e.Burn }

// FlashEvent records a flash sale burst.
type FlashEvent struct {
	SKU   string  `json:"sku"`
	Units int     `json:"units"`
	Price float64 `json:"price"`
	Rev   float64 `json:"rev"`
	Cost  float64 `json:"cost"`
}

// Kind implements Event.Kind.
func (e *FlashEvent) Kind() EventKind { return KindFlash }

// Amounts implements Event.Amounts.
func (e *FlashEvent) Amounts() (float64, float64) { return e.Rev, e.Cost }

// AuditEvent records an inventory audit pass. It carries no money.
type AuditEvent struct {
	Scope    string `json:"scope"`
	Items    int    `json:"items"`
	Findings int    `json:"findings"`
}

// Kind implements Event.Kind.
func (e *AuditEvent) Kind() EventKind { return KindAudit }

// Amounts implements Event.Amounts.
func (e *AuditEvent) Amounts() (float64, float64) { return 0, 0 }
