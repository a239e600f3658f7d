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

package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the size in bytes of a digest.
const HashSize = sha256.Size

// HexSize is the length of a hex encoded digest.
const HexSize = HashSize * 2

// Digester computes hex encoded digests.
type Digester interface {
	Digest(b []byte) string
}

// DigestFunc adapts an ordinary function to the Digester interface.
type DigestFunc func(b []byte) string

// Digest implements Digester.Digest.
func (f DigestFunc) Digest(b []byte) string {
	return f(b)
}

// SHA256 is the default Digester.
var SHA256 Digester = DigestFunc(HashHex)

// HashB calculates sha256(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	hash := sha256.Sum256(b)
	return hash[:]
}

// HashHex calculates sha256(b) and returns the lowercase hex string.
func HashHex(b []byte) string {
	hash := sha256.Sum256(b)
	return hex.EncodeToString(hash[:])
}

// Genesis returns the initial chain tip of a domain ledger for seed.
func Genesis(d Digester, domain, seed string) string {
	if d == nil {
		d = SHA256
	}
	return d.Digest([]byte(domain + ":" + seed))
}

// Fold advances the chain tip by one committed capsule digest.
func Fold(d Digester, tip, sha string) string {
	if d == nil {
		d = SHA256
	}
	return d.Digest([]byte(tip + ":" + sha))
}

// IsHex reports whether s looks like a hex encoded digest.
func IsHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
