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

import "github.com/pkg/errors"

var (
	// ErrIndexClosed indicates an operation on a closed index.
	ErrIndexClosed = errors.New("inventory index is closed")
	// ErrAlreadyExists indicates a capsule id or segment indexed twice.
	ErrAlreadyExists = errors.New("inventory item already exists")
	// ErrNotExists indicates an unknown capsule id or segment.
	ErrNotExists = errors.New("inventory item not exists")
	// ErrInvalidItem indicates an item without capsule id or segment.
	ErrInvalidItem = errors.New("invalid inventory item")
)
