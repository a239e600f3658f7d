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
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	// itemKeyPrefix prefixes cid keyed item records.
	itemKeyPrefix = []byte{'I', 'C'}
	// segKeyPrefix prefixes segment to cid records.
	segKeyPrefix = []byte{'I', 'S'}
	// refKeyPrefix prefixes payload name to cid records.
	refKeyPrefix = []byte{'I', 'R'}
)

// LevelDBIndex persists the inventory in a leveldb database.
type LevelDBIndex struct {
	sync.Mutex
	db     *leveldb.DB
	count  int64
	closed uint32
}

// NewLevelDBIndex opens or creates the index database at filename.
func NewLevelDBIndex(filename string) (p *LevelDBIndex, err error) {
	p = &LevelDBIndex{}
	if p.db, err = leveldb.OpenFile(filename, nil); err != nil {
		err = errors.Wrap(err, "open database failed")
		return nil, err
	}

	it := p.db.NewIterator(util.BytesPrefix(itemKeyPrefix), nil)
	for it.Next() {
		p.count++
	}
	it.Release()
	if err = it.Error(); err != nil {
		p.db.Close()
		return nil, errors.Wrap(err, "count items failed")
	}
	return
}

func key(prefix []byte, suffix []byte) []byte {
	return append(append([]byte(nil), prefix...), suffix...)
}

func segKey(seg uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seg)
	return key(segKeyPrefix, b[:])
}

func (p *LevelDBIndex) has(k []byte) (bool, error) {
	ok, err := p.db.Has(k, nil)
	if err != nil {
		return false, errors.Wrap(err, "access leveldb failed")
	}
	return ok, nil
}

// Put implements Index.Put.
func (p *LevelDBIndex) Put(it *Item) (err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrIndexClosed
	}
	if err = validate(it); err != nil {
		return
	}

	p.Lock()
	defer p.Unlock()

	for _, k := range [][]byte{key(itemKeyPrefix, []byte(it.CID)), segKey(it.Seg)} {
		var exists bool
		if exists, err = p.has(k); err != nil {
			return
		} else if exists {
			return ErrAlreadyExists
		}
	}

	enc, err := json.Marshal(it)
	if err != nil {
		return errors.Wrap(err, "encode item failed")
	}
	b := new(leveldb.Batch)
	b.Put(key(itemKeyPrefix, []byte(it.CID)), enc)
	b.Put(segKey(it.Seg), []byte(it.CID))
	for _, ref := range it.refs() {
		b.Put(key(refKeyPrefix, []byte(ref)), []byte(it.CID))
	}
	if err = p.db.Write(b, nil); err != nil {
		return errors.Wrap(err, "write item failed")
	}
	atomic.AddInt64(&p.count, 1)
	return
}

// Get implements Index.Get.
func (p *LevelDBIndex) Get(cid string) (it *Item, err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return nil, ErrIndexClosed
	}
	raw, err := p.db.Get(key(itemKeyPrefix, []byte(cid)), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotExists
	} else if err != nil {
		return nil, errors.Wrap(err, "read item failed")
	}
	it = &Item{}
	if err = json.Unmarshal(raw, it); err != nil {
		return nil, errors.Wrap(err, "decode item failed")
	}
	return
}

// BySegment implements Index.BySegment.
func (p *LevelDBIndex) BySegment(seg uint64) (it *Item, err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return nil, ErrIndexClosed
	}
	cid, err := p.db.Get(segKey(seg), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotExists
	} else if err != nil {
		return nil, errors.Wrap(err, "read segment failed")
	}
	return p.Get(string(cid))
}

// Has implements Index.Has.
func (p *LevelDBIndex) Has(cid string) bool {
	if atomic.LoadUint32(&p.closed) == 1 {
		return false
	}
	ok, _ := p.has(key(itemKeyPrefix, []byte(cid)))
	return ok
}

// HasRef implements Index.HasRef.
func (p *LevelDBIndex) HasRef(ref string) bool {
	if atomic.LoadUint32(&p.closed) == 1 {
		return false
	}
	ok, _ := p.has(key(refKeyPrefix, []byte(ref)))
	return ok
}

// Len implements Index.Len.
func (p *LevelDBIndex) Len() int {
	return int(atomic.LoadInt64(&p.count))
}

// Reset implements Index.Reset.
func (p *LevelDBIndex) Reset() (err error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrIndexClosed
	}

	p.Lock()
	defer p.Unlock()

	b := new(leveldb.Batch)
	for _, prefix := range [][]byte{itemKeyPrefix, segKeyPrefix, refKeyPrefix} {
		it := p.db.NewIterator(util.BytesPrefix(prefix), nil)
		for it.Next() {
			b.Delete(append([]byte(nil), it.Key()...))
		}
		it.Release()
		if err = it.Error(); err != nil {
			return errors.Wrap(err, "scan index failed")
		}
	}
	if err = p.db.Write(b, nil); err != nil {
		return errors.Wrap(err, "reset index failed")
	}
	atomic.StoreInt64(&p.count, 0)
	return
}

// Close implements Index.Close.
func (p *LevelDBIndex) Close() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.db.Close()
}
