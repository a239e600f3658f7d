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

// Package clock provides the time source used to stamp committed capsules.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Sequencer is implemented by clocks whose stamps are a pure function of the
// segment index. The chain closer prefers At over Now when available so that
// replays and resumed runs produce identical timestamps.
type Sequencer interface {
	At(seq uint64) time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Real returns the wall clock in UTC.
func Real() Clock {
	return realClock{}
}

// EpochClock stamps segment seq at base + seq*step.
type EpochClock struct {
	base time.Time
	step time.Duration

	sync.Mutex
	last uint64
}

// Epoch returns a deterministic clock anchored at base.
func Epoch(base time.Time, step time.Duration) *EpochClock {
	if step <= 0 {
		step = time.Second
	}
	return &EpochClock{
		base: base.UTC().Truncate(time.Second),
		step: step,
	}
}

// At implements Sequencer.At.
func (c *EpochClock) At(seq uint64) time.Time {
	c.Lock()
	if seq > c.last {
		c.last = seq
	}
	c.Unlock()
	return c.base.Add(time.Duration(seq) * c.step)
}

// Now returns the stamp of the highest sequence observed so far.
func (c *EpochClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.base.Add(time.Duration(c.last) * c.step)
}

// Fixed is a clock frozen at a single instant.
type Fixed time.Time

// Now implements Clock.Now.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
