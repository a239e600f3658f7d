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

// Package hash provides the content digest used to address capsule payloads
// and to fold the ledger chain tip.
//
// Every digest in the ledger is the lowercase hex SHA-256 of its input. The
// Digester interface exists so tests can replace the digest together with the
// clock when checking reproducibility.
//
// The chain tip is a rolling digest over committed capsule digests:
//
//	tip_0 = H(domain + ":" + seed)
//	tip_n = H(tip_{n-1} + ":" + sha_n)
package hash
