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

// Package journal implements the append-only JSONL ledger shared by the chain
// closer and the auditor.
package journal

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

const fileSuffix = "_ledger.jsonl"

// FileName returns the journal file name of domain.
func FileName(domain string) string {
	return domain + fileSuffix
}

// Path returns the journal location of domain under dir.
func Path(dir, domain string) string {
	return filepath.Join(dir, FileName(domain))
}

// Journal is an exclusively locked append-only journal file.
type Journal struct {
	sync.Mutex
	path   string
	file   *os.File
	lines  uint64
	closed uint32
}

// Open opens path for appending and takes an exclusive advisory lock on it.
// The file is created when absent.
func Open(path string) (j *Journal, err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		err = errors.Wrapf(err, "open journal %s", path)
		return
	}
	if err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrapf(ErrLocked, "%s", path)
		}
		return nil, errors.Wrapf(err, "lock journal %s", path)
	}
	j = &Journal{
		path: path,
		file: f,
	}
	return
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Appended returns the number of lines appended through j.
func (j *Journal) Appended() uint64 {
	return atomic.LoadUint64(&j.lines)
}

// Append encodes e as one minified line, writes it and syncs the file. The
// encoded line without its newline is returned.
func (j *Journal) Append(e *types.Entry) (line []byte, err error) {
	if atomic.LoadUint32(&j.closed) == 1 {
		err = ErrJournalClosed
		return
	}
	if line, err = types.Marshal(e); err != nil {
		err = errors.Wrapf(err, "encode journal entry %s", e.CID)
		return
	}

	j.Lock()
	defer j.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err = j.file.Write(buf); err != nil {
		err = errors.Wrapf(err, "append journal %s", j.path)
		return
	}
	if err = j.file.Sync(); err != nil {
		err = errors.Wrapf(err, "sync journal %s", j.path)
		return
	}
	atomic.AddUint64(&j.lines, 1)
	return
}

// Close releases the lock and closes the file.
func (j *Journal) Close() error {
	if !atomic.CompareAndSwapUint32(&j.closed, 0, 1) {
		return nil
	}
	j.Lock()
	defer j.Unlock()
	unix.Flock(int(j.file.Fd()), unix.LOCK_UN)
	return j.file.Close()
}

// Record is one decoded journal line.
type Record struct {
	// Line is the 1-based line number.
	Line  int
	Raw   []byte
	Entry *types.Entry
}

// ReadAll reads and decodes every line of the journal at path. A missing file
// is an empty journal.
func ReadAll(path string) (records []*Record, err error) {
	records, bad, err := Scan(path)
	if err != nil || len(bad) == 0 {
		return
	}
	b := bad[0]
	if b.Tail {
		return nil, errors.Wrapf(ErrCorruptedTail, "%s line %d: %v", path, b.Line, b.Err)
	}
	return nil, errors.Wrapf(ErrCorruptedEntry, "%s line %d: %v", path, b.Line, b.Err)
}

// BadLine is a journal line that could not be decoded.
type BadLine struct {
	Line int
	Raw  []byte
	// Tail marks the last line, including an unterminated one.
	Tail bool
	Err  error
}

// Scan decodes the journal at path line by line, collecting undecodable
// lines instead of failing on them. Only I/O errors are returned.
func Scan(path string) (records []*Record, bad []*BadLine, err error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrapf(err, "read journal %s", path)
	}
	if len(raw) == 0 {
		return
	}
	terminated := raw[len(raw)-1] == '\n'
	if terminated {
		raw = raw[:len(raw)-1]
	}

	lines := bytes.Split(raw, []byte{'\n'})
	records = make([]*Record, 0, len(lines))
	for i, l := range lines {
		tail := i == len(lines)-1
		e := &types.Entry{}
		if derr := json.Unmarshal(l, e); derr != nil {
			bad = append(bad, &BadLine{Line: i + 1, Raw: l, Tail: tail, Err: derr})
			continue
		}
		if tail && !terminated {
			bad = append(bad, &BadLine{Line: i + 1, Raw: l, Tail: true, Err: errors.New("last line is unterminated")})
			continue
		}
		records = append(records, &Record{
			Line:  i + 1,
			Raw:   l,
			Entry: e,
		})
	}
	return
}
