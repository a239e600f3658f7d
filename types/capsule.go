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

// Capsule is the atomic ledger unit: a common envelope linking a payload file
// into the chain plus the fixed fields of its domain event.
type Capsule struct {
	CID        string
	TS         string
	Seg        uint64
	PayloadRef string
	SHA        string
	Prev       string
	Event      Event
}

type capsuleEnvelope struct {
	CID        string    `json:"cid"`
	TS         string    `json:"ts"`
	Kind       EventKind `json:"event"`
	Seg        uint64    `json:"seg"`
	PayloadRef string    `json:"payload_ref"`
	SHA        string    `json:"sha"`
	Prev       string    `json:"prev"`
}

// Kind returns the event kind of the capsule.
func (c *Capsule) Kind() EventKind {
	if c.Event == nil {
		return ""
	}
	return c.Event.Kind()
}

// MarshalJSON implements json.Marshaler.
func (c *Capsule) MarshalJSON() ([]byte, error) {
	return mergeObject(&capsuleEnvelope{
		CID:        c.CID,
		TS:         c.TS,
		Kind:       c.Kind(),
		Seg:        c.Seg,
		PayloadRef: c.PayloadRef,
		SHA:        c.SHA,
		Prev:       c.Prev,
	}, c.Event)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Capsule) UnmarshalJSON(data []byte) (err error) {
	var env capsuleEnvelope
	if err = json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.CID == "" || env.Kind == "" {
		return errors.Wrap(ErrInvalidRecord, "capsule without cid or event")
	}
	var ev Event
	if ev, err = DecodeEvent(env.Kind, data); err != nil {
		return
	}
	*c = Capsule{
		CID:        env.CID,
		TS:         env.TS,
		Seg:        env.Seg,
		PayloadRef: env.PayloadRef,
		SHA:        env.SHA,
		Prev:       env.Prev,
		Event:      ev,
	}
	return
}

// Entry returns the journal line describing the capsule.
func (c *Capsule) Entry() *Entry {
	return &Entry{
		TS:    c.TS,
		CID:   c.CID,
		SHA:   c.SHA,
		Prev:  c.Prev,
		Seg:   c.Seg,
		Event: c.Event,
	}
}

// Entry is one journal line: {ts, event, cid, sha, prev, seg, ...domain fields}.
type Entry struct {
	TS    string
	CID   string
	SHA   string
	Prev  string
	Seg   uint64
	Event Event
}

type entryEnvelope struct {
	TS   string    `json:"ts"`
	Kind EventKind `json:"event"`
	CID  string    `json:"cid"`
	SHA  string    `json:"sha"`
	Prev string    `json:"prev"`
	Seg  uint64    `json:"seg"`
}

// Kind returns the event kind of the entry.
func (e *Entry) Kind() EventKind {
	if e.Event == nil {
		return ""
	}
	return e.Event.Kind()
}

// MarshalJSON implements json.Marshaler.
func (e *Entry) MarshalJSON() ([]byte, error) {
	return mergeObject(&entryEnvelope{
		TS:   e.TS,
		Kind: e.Kind(),
		CID:  e.CID,
		SHA:  e.SHA,
		Prev: e.Prev,
		Seg:  e.Seg,
	}, e.Event)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) (err error) {
	var env entryEnvelope
	if err = json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.CID == "" || env.Kind == "" {
		return errors.Wrap(ErrInvalidRecord, "journal entry without cid or event")
	}
	var ev Event
	if ev, err = DecodeEvent(env.Kind, data); err != nil {
		return
	}
	*e = Entry{
		TS:    env.TS,
		CID:   env.CID,
		SHA:   env.SHA,
		Prev:  env.Prev,
		Seg:   env.Seg,
		Event: ev,
	}
	return
}

// SegmentSummary holds the per-segment aggregates a worker derives.
type SegmentSummary struct {
	Rev    float64
	Cost   float64
	Margin float64
	Cycles int
}
