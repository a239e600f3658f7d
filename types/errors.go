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

package types

import (
	"errors"
)

var (
	// ErrUnknownEventKind indicates a record tagged with an event kind that has
	// no registered variant.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrMissingColumns indicates a summary without domain column names.
	ErrMissingColumns = errors.New("summary columns are not set")
	// ErrInvalidRecord indicates a capsule or journal record missing envelope fields.
	ErrInvalidRecord = errors.New("invalid ledger record")
)
