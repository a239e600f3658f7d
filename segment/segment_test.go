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
	"encoding/json"
	"io/ioutil"
	"os"
	"regexp"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

func newProducer(t *testing.T, domain string, cycles int) *Producer {
	d, err := ByName(domain, nil)
	So(err, ShouldBeNil)
	s, err := capsule.NewStore(t.TempDir(), nil)
	So(err, ShouldBeNil)
	return NewProducer(d, s, cycles)
}

func TestDomains(t *testing.T) {
	Convey("domains resolve by name", t, func() {
		for name, prefix := range map[string]string{
			conf.DomainMarket: "MKT",
			conf.DomainSaaS:   "SAAS",
			conf.DomainMesh:   "MESH",
		} {
			d, err := ByName(name, conf.DefaultProfile())
			So(err, ShouldBeNil)
			So(d.Name(), ShouldEqual, name)
			So(d.Prefix(), ShouldEqual, prefix)
			cols, err := Columns(name)
			So(err, ShouldBeNil)
			So(cols, ShouldResemble, d.Columns())
		}
		_, err := ByName("flash", nil)
		So(errors.Is(err, ErrUnknownDomain), ShouldBeTrue)
		_, err = Columns("flash")
		So(errors.Is(err, ErrUnknownDomain), ShouldBeTrue)
	})
	Convey("empty profile tables are rejected", t, func() {
		_, err := NewMarket(&conf.Profile{Capabilities: []string{"x"}})
		So(errors.Is(err, ErrEmptyProfile), ShouldBeTrue)
		_, err = NewSaaS(&conf.Profile{Plans: []conf.Plan{{Name: "x", Quota: 1, PPC: 1}}})
		So(errors.Is(err, ErrEmptyProfile), ShouldBeTrue)
		_, err = NewMesh(&conf.Profile{})
		So(errors.Is(err, ErrEmptyProfile), ShouldBeTrue)
	})
}

func TestMarket(t *testing.T) {
	Convey("market segments clear every capability each cycle", t, func() {
		p := newProducer(t, conf.DomainMarket, 2)
		seg, err := p.Simulate(3)
		So(err, ShouldBeNil)
		So(seg.CID, ShouldStartWith, "MKT-SEG3-")
		So(regexp.MustCompile(`^MKT-SEG3-[0-9a-f]{6}$`).MatchString(seg.CID), ShouldBeTrue)
		So(seg.PayloadRef, ShouldEqual, seg.CID+"_payload.json")

		var payload marketPayload
		So(json.Unmarshal(seg.Payload, &payload), ShouldBeNil)
		So(payload.Cycles, ShouldHaveLength, 2)
		for _, cy := range payload.Cycles {
			So(cy.Trades, ShouldHaveLength, 5)
			for idx, tr := range cy.Trades {
				So(tr.Demand, ShouldBeBetweenOrEqual, 4, 30)
				So(tr.Payout, ShouldBeLessThan, tr.Rev)
				So(tr.Price, ShouldBeLessThanOrEqualTo, (0.02+0.03*float64(idx))*1.2/0.9+1e-6)
				switch tr.Cap {
				case "publish", "plan":
					So(tr.Take, ShouldAlmostEqual, 0.15, 1e-9)
				default:
					So(tr.Take, ShouldAlmostEqual, 0.12, 1e-9)
				}
			}
		}
		ev := seg.Event.(*types.MarketEvent)
		So(ev.Rev, ShouldEqual, payload.Rev)
		So(ev.Payout, ShouldEqual, payload.Payout)
		So(ev.Cycles, ShouldEqual, 2)
		So(seg.Summary.Margin, ShouldAlmostEqual, payload.Rev-payload.Payout, 1e-6)
	})
	Convey("the cheapest adjusted bid wins", t, func() {
		m, err := NewMarket(&conf.Profile{
			Agents:       []conf.Agent{{Name: "slow", Weight: 0.01}, {Name: "fast", Weight: 100}},
			Capabilities: []string{"discover"},
		})
		So(err, ShouldBeNil)
		seg, err := m.Simulate(NewRand(m, 1), "MKT-SEG1-000000", 1, 1)
		So(err, ShouldBeNil)
		var payload marketPayload
		So(json.Unmarshal(seg.Payload, &payload), ShouldBeNil)
		So(payload.Cycles[0].Trades[0].Agent, ShouldEqual, "fast")
	})
}

func TestSaaS(t *testing.T) {
	Convey("saas segments record every cycle and mint licenses", t, func() {
		p := newProducer(t, conf.DomainSaaS, 6)
		r, err := p.Produce(context.Background(), 2)
		So(err, ShouldBeNil)
		ev := r.Capsule.Event.(*types.SaaSEvent)
		So(regexp.MustCompile(`^SAAS-(STARTER|PRO|ENTERPRISE)-SEG2$`).MatchString(ev.SKU), ShouldBeTrue)
		So(r.Capsule.PayloadRef, ShouldEqual, ev.SKU+".json")
		So(ev.Licenses, ShouldBeBetweenOrEqual, 1, 12)

		raw, err := p.Store.ReadPayload(r.Capsule.PayloadRef)
		So(err, ShouldBeNil)
		So(hash.HashHex(raw), ShouldEqual, r.Capsule.SHA)

		var payload saasPayload
		So(json.Unmarshal(raw, &payload), ShouldBeNil)
		So(payload.Cycles, ShouldHaveLength, 6)
		So(payload.Licenses, ShouldHaveLength, ev.Licenses)
		for _, k := range payload.Licenses {
			So(regexp.MustCompile(`^LIC-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`).MatchString(k), ShouldBeTrue)
		}
		for _, cy := range payload.Cycles {
			So(float64(cy.Usage), ShouldBeBetweenOrEqual, 0.3*payload.Quota-1, payload.Quota)
			So(cy.Overage, ShouldEqual, 0)
			So(cy.Users, ShouldBeBetweenOrEqual, 5, 200)
			So(cy.Rev, ShouldAlmostEqual, payload.Quota*payload.PPC, 1e-6)
		}

		name, zipped, err := p.Store.ReadArchive(ev.SKU + ".zip")
		So(err, ShouldBeNil)
		So(name, ShouldEqual, ev.SKU+".json")
		So(zipped, ShouldResemble, raw)
	})
}

func TestMesh(t *testing.T) {
	Convey("mesh segments fire triggers round robin", t, func() {
		d, err := NewMesh(&conf.Profile{Triggers: []string{"a", "b"}})
		So(err, ShouldBeNil)
		So(d.Trigger(1), ShouldEqual, "a")
		So(d.Trigger(2), ShouldEqual, "b")
		So(d.Trigger(3), ShouldEqual, "a")

		seg, err := d.Simulate(NewRand(d, 4), "MESH-SEG4-000000", 4, 5)
		So(err, ShouldBeNil)
		var payload meshPayload
		So(json.Unmarshal(seg.Payload, &payload), ShouldBeNil)
		So(payload.Trigger, ShouldEqual, "b")
		So(payload.Actions, ShouldHaveLength, 5)
		for _, a := range payload.Actions {
			So(a.Mint, ShouldBeBetweenOrEqual, 1, 10)
			So(a.Burn, ShouldBeBetweenOrEqual, a.Mint*0.05-1e-6, a.Mint*0.15+1e-6)
		}
		So(payload.Supply, ShouldAlmostEqual, payload.Mint-payload.Burn, 1e-6)
	})
}

func TestProducer(t *testing.T) {
	Convey("replaying an index yields identical bytes", t, func() {
		for _, domain := range []string{conf.DomainMarket, conf.DomainSaaS, conf.DomainMesh} {
			p := newProducer(t, domain, 3)
			a, err := p.Produce(context.Background(), 5)
			So(err, ShouldBeNil)
			b, err := p.Produce(context.Background(), 5)
			So(err, ShouldBeNil)
			So(b, ShouldResemble, a)
			So(a.Capsule.Prev, ShouldBeEmpty)
			So(a.Capsule.TS, ShouldBeEmpty)

			q := newProducer(t, domain, 3)
			c, err := q.Produce(context.Background(), 5)
			So(err, ShouldBeNil)
			So(c.Capsule.SHA, ShouldEqual, a.Capsule.SHA)

			other, err := p.Produce(context.Background(), 6)
			So(err, ShouldBeNil)
			So(other.Capsule.CID, ShouldNotEqual, a.Capsule.CID)
		}
	})
	Convey("producers honour cancellation and index bounds", t, func() {
		p := newProducer(t, conf.DomainMarket, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Produce(ctx, 1)
		So(err, ShouldEqual, context.Canceled)
		_, err = p.Produce(context.Background(), 0)
		So(errors.Is(err, ErrInvalidIndex), ShouldBeTrue)
	})
	Convey("conflicting payloads are fatal, io failures retryable", t, func() {
		p := newProducer(t, conf.DomainMarket, 1)
		seg, err := p.Simulate(1)
		So(err, ShouldBeNil)
		So(ioutil.WriteFile(p.Store.Path(seg.PayloadRef), []byte("tampered"), 0644), ShouldBeNil)
		_, err = p.Produce(context.Background(), 1)
		So(errors.Is(err, capsule.ErrAlreadyExists), ShouldBeTrue)
		So(IsRetryable(err), ShouldBeFalse)

		So(os.RemoveAll(p.Store.Base()), ShouldBeNil)
		_, err = p.Produce(context.Background(), 2)
		So(IsRetryable(err), ShouldBeTrue)
	})
	Convey("retryable wrapping", t, func() {
		So(Retryable(nil), ShouldBeNil)
		base := errors.New("disk hiccup")
		err := errors.Wrap(Retryable(base), "segment 3")
		So(IsRetryable(err), ShouldBeTrue)
		So(errors.Is(err, base), ShouldBeTrue)
		So(IsRetryable(base), ShouldBeFalse)
		So(err.Error(), ShouldContainSubstring, "disk hiccup")
	})
}
