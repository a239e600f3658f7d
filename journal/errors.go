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

package journal

import "github.com/pkg/errors"

var (
	// ErrLocked indicates another process holds the journal.
	ErrLocked = errors.New("journal is locked by another writer")
	// ErrCorruptedTail indicates an unterminated or undecodable last line.
	ErrCorruptedTail = errors.New("journal tail is corrupted")
	// ErrCorruptedEntry indicates an undecodable line before the tail.
	ErrCorruptedEntry = errors.New("journal entry is corrupted")
	// ErrJournalClosed indicates an append to a closed journal.
	ErrJournalClosed = errors.New("journal is closed")
)
