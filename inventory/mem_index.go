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

package inventory

import (
	"sync"
	"sync/atomic"
)

// MemIndex keeps the inventory in memory.
type MemIndex struct {
	sync.RWMutex
	items  map[string]*Item
	segs   map[uint64]string
	refs   map[string]string
	closed uint32
}

// NewMemIndex returns an empty memory index.
func NewMemIndex() *MemIndex {
	p := &MemIndex{}
	p.reset()
	return p
}

func (p *MemIndex) reset() {
	p.items = make(map[string]*Item)
	p.segs = make(map[uint64]string)
	p.refs = make(map[string]string)
}

// Put implements Index.Put.
func (p *MemIndex) Put(it *Item) (err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrIndexClosed
	}
	if err = validate(it); err != nil {
		return
	}

	p.Lock()
	defer p.Unlock()

	if _, exists := p.items[it.CID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := p.segs[it.Seg]; exists {
		return ErrAlreadyExists
	}
	cp := *it
	p.items[it.CID] = &cp
	p.segs[it.Seg] = it.CID
	for _, ref := range it.refs() {
		p.refs[ref] = it.CID
	}
	return
}

// Get implements Index.Get.
func (p *MemIndex) Get(cid string) (it *Item, err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return nil, ErrIndexClosed
	}

	p.RLock()
	defer p.RUnlock()

	stored, exists := p.items[cid]
	if !exists {
		return nil, ErrNotExists
	}
	cp := *stored
	return &cp, nil
}

// BySegment implements Index.BySegment.
func (p *MemIndex) BySegment(seg uint64) (it *Item, err error) {
	p.RLock()
	cid, exists := p.segs[seg]
	p.RUnlock()
	if !exists {
		if atomic.LoadUint32(&p.closed) == 1 {
			return nil, ErrIndexClosed
		}
		return nil, ErrNotExists
	}
	return p.Get(cid)
}

// Has implements Index.Has.
func (p *MemIndex) Has(cid string) bool {
	p.RLock()
	defer p.RUnlock()
	_, exists := p.items[cid]
	return exists
}

// HasRef implements Index.HasRef.
func (p *MemIndex) HasRef(ref string) bool {
	p.RLock()
	defer p.RUnlock()
	_, exists := p.refs[ref]
	return exists
}

// Len implements Index.Len.
func (p *MemIndex) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.items)
}

// Reset implements Index.Reset.
func (p *MemIndex) Reset() error {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrIndexClosed
	}
	p.Lock()
	defer p.Unlock()
	p.reset()
	return nil
}

// Close implements Index.Close.
func (p *MemIndex) Close() {
	atomic.CompareAndSwapUint32(&p.closed, 0, 1)
}
