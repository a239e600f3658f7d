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

import "github.com/pkg/errors"

var (
	// ErrAlreadyExists indicates a payload name already holds different bytes.
	ErrAlreadyExists = errors.New("payload already exists with a different digest")
	// ErrMissingPayload indicates a capsule record whose payload is absent.
	ErrMissingPayload = errors.New("capsule payload is missing")
	// ErrDigestMismatch indicates payload bytes whose digest differs from the
	// recorded sha.
	ErrDigestMismatch = errors.New("payload digest mismatch")
	// ErrNotFound indicates an absent capsule record.
	ErrNotFound = errors.New("capsule not found")
	// ErrInvalidName indicates a file name escaping the store directory.
	ErrInvalidName = errors.New("invalid store file name")
)
