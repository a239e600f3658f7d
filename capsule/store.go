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

package capsule

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/crypto/hash"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

const (
	// DefaultCacheSize is the number of capsule records kept decoded.
	DefaultCacheSize = 256

	filePerm = 0644
	dirPerm  = 0755

	capsuleExt  = ".json"
	archiveExt  = ".zip"
	journalExt  = ".jsonl"
	summarySufx = "_summary.json"
)

// archiveModTime is stamped on every archive entry so archives are
// reproducible byte for byte.
var archiveModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a Store.
type Options struct {
	Digester  hash.Digester
	CacheSize int
}

// Store is a directory of payloads, payload archives and capsule records.
// Every write goes through a temp sibling and a rename.
type Store struct {
	base   string
	digest hash.Digester
	cache  *lru.Cache
}

// NewStore creates base if needed and returns a store rooted there.
func NewStore(base string, opts *Options) (s *Store, err error) {
	if opts == nil {
		opts = &Options{}
	}
	if err = os.MkdirAll(base, dirPerm); err != nil {
		err = errors.Wrapf(err, "create store directory %s", base)
		return
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	s = &Store{
		base:   base,
		digest: opts.Digester,
	}
	if s.digest == nil {
		s.digest = hash.SHA256
	}
	if s.cache, err = lru.New(size); err != nil {
		err = errors.Wrap(err, "create capsule cache")
		return nil, err
	}
	return
}

// Base returns the store directory.
func (s *Store) Base() string {
	return s.base
}

// Digest hashes b with the store digester.
func (s *Store) Digest(b []byte) string {
	return s.digest.Digest(b)
}

// Path returns the absolute location of a store file name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.base, name)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		filepath.Base(name) != name || strings.ContainsAny(name, `/\`) || utils.IsTemp(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}

// PutPayload writes the payload of cid under ref and returns its digest.
// Writing identical bytes again is a no-op; different bytes fail with
// ErrAlreadyExists.
func (s *Store) PutPayload(cid, ref string, data []byte) (sha string, err error) {
	if err = checkName(ref); err != nil {
		return
	}
	sha = s.Digest(data)
	path := s.Path(ref)

	existing, err := ioutil.ReadFile(path)
	switch {
	case err == nil:
		if s.Digest(existing) == sha {
			log.WithFields(log.Fields{"cid": cid, "ref": ref}).Debug("payload already present")
			return sha, nil
		}
		return "", errors.Wrapf(ErrAlreadyExists, "cid %s ref %s", cid, ref)
	case !os.IsNotExist(err):
		return "", errors.Wrapf(err, "read payload %s", ref)
	}

	if err = utils.WriteFileAtomic(path, data, filePerm); err != nil {
		return "", errors.Wrapf(err, "write payload of %s", cid)
	}
	log.WithFields(log.Fields{"cid": cid, "ref": ref, "sha": sha}).Debug("payload written")
	return sha, nil
}

// ReadPayload returns the bytes stored under ref.
func (s *Store) ReadPayload(ref string) (data []byte, err error) {
	if err = checkName(ref); err != nil {
		return
	}
	if data, err = ioutil.ReadFile(s.Path(ref)); err != nil {
		if os.IsNotExist(err) {
			err = errors.Wrapf(ErrMissingPayload, "ref %s", ref)
			return
		}
		err = errors.Wrapf(err, "read payload %s", ref)
	}
	return
}

// VerifyPayload re-reads ref and checks its digest against sha.
func (s *Store) VerifyPayload(ref, sha string) error {
	data, err := s.ReadPayload(ref)
	if err != nil {
		return err
	}
	if got := s.Digest(data); got != sha {
		return errors.Wrapf(ErrDigestMismatch, "ref %s: want %s got %s", ref, sha, got)
	}
	return nil
}

// PutArchive writes a deflated zip holding data as entry name under ref.
func (s *Store) PutArchive(ref, name string, data []byte) (err error) {
	if err = checkName(ref); err != nil {
		return
	}
	archive, err := buildArchive(name, data)
	if err != nil {
		return errors.Wrapf(err, "build archive %s", ref)
	}
	if err = utils.WriteFileAtomic(s.Path(ref), archive, filePerm); err != nil {
		return errors.Wrapf(err, "write archive %s", ref)
	}
	return
}

// ReadArchive returns the first entry of the zip stored under ref.
func (s *Store) ReadArchive(ref string) (name string, data []byte, err error) {
	if err = checkName(ref); err != nil {
		return
	}
	raw, err := ioutil.ReadFile(s.Path(ref))
	if err != nil {
		err = errors.Wrapf(err, "read archive %s", ref)
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		err = errors.Wrapf(err, "open archive %s", ref)
		return
	}
	if len(zr.File) == 0 {
		err = errors.Errorf("archive %s is empty", ref)
		return
	}
	f := zr.File[0]
	rc, err := f.Open()
	if err != nil {
		err = errors.Wrapf(err, "open archive entry %s", f.Name)
		return
	}
	defer rc.Close()
	if data, err = ioutil.ReadAll(rc); err != nil {
		err = errors.Wrapf(err, "inflate archive entry %s", f.Name)
		return
	}
	return f.Name, data, nil
}

func buildArchive(name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fh := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: archiveModTime,
	}
	fh.SetMode(filePerm)
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PutCapsule writes the record of c as {cid}.json. The payload must exist.
func (s *Store) PutCapsule(c *types.Capsule) (err error) {
	if c == nil || c.CID == "" {
		return errors.Wrap(types.ErrInvalidRecord, "capsule without cid")
	}
	name := c.CID + capsuleExt
	if err = checkName(name); err != nil {
		return
	}
	if err = checkName(c.PayloadRef); err != nil {
		return
	}
	if !utils.Exist(s.Path(c.PayloadRef)) {
		return errors.Wrapf(ErrMissingPayload, "cid %s ref %s", c.CID, c.PayloadRef)
	}
	raw, err := types.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode capsule %s", c.CID)
	}
	if err = utils.WriteFileAtomic(s.Path(name), raw, filePerm); err != nil {
		return errors.Wrapf(err, "write capsule %s", c.CID)
	}
	cp := *c
	s.cache.Add(c.CID, &cp)
	return
}

// GetCapsule returns the record of cid, from the cache when present.
func (s *Store) GetCapsule(cid string) (c *types.Capsule, err error) {
	if v, ok := s.cache.Get(cid); ok {
		cp := *v.(*types.Capsule)
		return &cp, nil
	}
	return s.ReadCapsule(cid)
}

// ReadCapsule reads the record of cid from disk, bypassing and refreshing
// the cache.
func (s *Store) ReadCapsule(cid string) (c *types.Capsule, err error) {
	name := cid + capsuleExt
	if err = checkName(name); err != nil {
		return
	}
	raw, err := ioutil.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			s.cache.Remove(cid)
			err = errors.Wrapf(ErrNotFound, "cid %s", cid)
			return
		}
		err = errors.Wrapf(err, "read capsule %s", cid)
		return
	}
	if c, err = decodeCapsule(raw); err != nil {
		return nil, errors.Wrapf(err, "decode capsule %s", cid)
	}
	if c.CID != cid {
		return nil, errors.Wrapf(types.ErrInvalidRecord, "file %s holds cid %s", name, c.CID)
	}
	cp := *c
	s.cache.Add(cid, &cp)
	return
}

// Evict drops cid from the record cache.
func (s *Store) Evict(cid string) {
	s.cache.Remove(cid)
}

type recordProbe struct {
	CID        string `json:"cid"`
	PayloadRef string `json:"payload_ref"`
}

func decodeCapsule(raw []byte) (*types.Capsule, error) {
	c := &types.Capsule{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

// isRecord reports whether the json file name holds a capsule record rather
// than a payload.
func isRecord(name string, raw []byte) bool {
	var p recordProbe
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	return p.CID != "" && p.PayloadRef != "" && p.CID+capsuleExt == name
}

type fileClass int

const (
	classOther fileClass = iota
	classJSON
	classArchive
)

func (s *Store) scan() (names []string, classes []fileClass, err error) {
	entries, err := ioutil.ReadDir(s.base)
	if err != nil {
		err = errors.Wrapf(err, "read store directory %s", s.base)
		return
	}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || utils.IsTemp(n) {
			continue
		}
		switch {
		case strings.HasSuffix(n, journalExt), strings.HasSuffix(n, summarySufx):
			continue
		case strings.HasSuffix(n, capsuleExt):
			names, classes = append(names, n), append(classes, classJSON)
		case strings.HasSuffix(n, archiveExt):
			names, classes = append(names, n), append(classes, classArchive)
		default:
			names, classes = append(names, n), append(classes, classOther)
		}
	}
	return
}

// IterCapsules calls fn for every capsule record in name order. Payloads,
// archives, summaries, journals and in-flight temp files are skipped.
func (s *Store) IterCapsules(fn func(c *types.Capsule) error) error {
	names, classes, err := s.scan()
	if err != nil {
		return err
	}
	for i, n := range names {
		if classes[i] != classJSON {
			continue
		}
		raw, err := ioutil.ReadFile(s.Path(n))
		if err != nil {
			return errors.Wrapf(err, "read %s", n)
		}
		if !isRecord(n, raw) {
			continue
		}
		c, err := decodeCapsule(raw)
		if err != nil {
			return errors.Wrapf(err, "decode capsule %s", n)
		}
		if err = fn(c); err != nil {
			return err
		}
	}
	return nil
}

// ListPayloads returns the names of all payload and archive files, sorted.
func (s *Store) ListPayloads() (refs []string, err error) {
	names, classes, err := s.scan()
	if err != nil {
		return
	}
	for i, n := range names {
		if classes[i] == classJSON {
			raw, err := ioutil.ReadFile(s.Path(n))
			if err != nil {
				return nil, errors.Wrapf(err, "read %s", n)
			}
			if isRecord(n, raw) {
				continue
			}
		}
		refs = append(refs, n)
	}
	sort.Strings(refs)
	return
}

// WriteFile atomically writes a store level document such as a summary.
func (s *Store) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.Path(name), data, filePerm)
}

// ReadFile reads a store level document.
func (s *Store) ReadFile(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return ioutil.ReadFile(s.Path(name))
}
