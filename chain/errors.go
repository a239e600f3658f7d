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

package chain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOrderViolation indicates a segment delivered out of the commit
	// window: already committed, duplicated, overflowing the reorder buffer
	// or still missing when the run finishes.
	ErrOrderViolation = errors.New("segment order violation")
	// ErrBrokenChain indicates an existing journal whose linkage cannot be
	// recovered.
	ErrBrokenChain = errors.New("journal chain is broken")
	// ErrInvalidResult indicates a worker result without a capsule stub.
	ErrInvalidResult = errors.New("invalid segment result")
	// ErrInvalidOptions indicates a closer or runtime built without its
	// collaborators.
	ErrInvalidOptions = errors.New("invalid chain options")
)

// FatalError aborts a run. Segment is the first index that could not be
// committed.
type FatalError struct {
	Segment uint64
	Err     error
}

// Error implements error.Error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal chain failure at segment %d: %v", e.Segment, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}
