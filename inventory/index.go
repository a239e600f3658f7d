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

// Package inventory indexes the capsules referenced by a journal so audits
// can tell committed files from orphans.
package inventory

import (
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

// Item is the inventory record of one committed capsule.
type Item struct {
	CID        string          `json:"cid"`
	Seg        uint64          `json:"seg"`
	SHA        string          `json:"sha"`
	PayloadRef string          `json:"payload_ref"`
	ArchiveRef string          `json:"archive_ref,omitempty"`
	Kind       types.EventKind `json:"event"`
	Rev        float64         `json:"rev"`
	Cost       float64         `json:"cost"`
}

// NewItem derives the inventory item of a journal entry.
func NewItem(e *types.Entry, payloadRef string) *Item {
	it := &Item{
		CID:        e.CID,
		Seg:        e.Seg,
		SHA:        e.SHA,
		PayloadRef: payloadRef,
		Kind:       e.Kind(),
	}
	if e.Event != nil {
		it.Rev, it.Cost = e.Event.Amounts()
	}
	return it
}

// Index stores items by capsule id, segment and payload name.
type Index interface {
	Put(it *Item) error
	Get(cid string) (*Item, error)
	BySegment(seg uint64) (*Item, error)
	Has(cid string) bool
	// HasRef reports whether a committed capsule references a store file.
	HasRef(ref string) bool
	Len() int
	// Reset drops every item.
	Reset() error
	Close()
}

// refs returns the store files the item references.
func (it *Item) refs() []string {
	refs := make([]string, 0, 2)
	for _, r := range []string{it.PayloadRef, it.ArchiveRef} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

func validate(it *Item) error {
	if it == nil || it.CID == "" || it.Seg == 0 {
		return ErrInvalidItem
	}
	return nil
}
