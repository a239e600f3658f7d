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

package segment

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownDomain indicates a domain name without a simulator.
	ErrUnknownDomain = errors.New("unknown ledger domain")
	// ErrEmptyProfile indicates a profile table the domain needs is empty.
	ErrEmptyProfile = errors.New("profile table is empty")
	// ErrInvalidIndex indicates a segment index below 1.
	ErrInvalidIndex = errors.New("segment index must be >= 1")
)

// RetryableError marks a transient worker failure. The runtime retries the
// same segment index with the same seed.
type RetryableError struct {
	Err error
}

// Error implements error.Error.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable segment failure: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Cause implements the pkg/errors causer.
func (e *RetryableError) Cause() error {
	return e.Err
}

// Retryable wraps err as a RetryableError. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether any error in the chain of err is retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
