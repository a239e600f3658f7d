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

package timer

import (
	"sync"
	"time"

	"github.com/Jvryan92/epochcore-RAS-sub008/clock"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

// Timer defines a stop watch over the stages of one segment.
type Timer struct {
	sync.Mutex
	clk    clock.Clock
	start  time.Time
	names  []string
	pivots []time.Time
}

// NewTimer returns a new stop watch timer on the wall clock.
func NewTimer() *Timer {
	return NewTimerWithClock(clock.Real())
}

// NewTimerWithClock returns a stop watch reading clk.
func NewTimerWithClock(clk clock.Clock) *Timer {
	return &Timer{
		clk:   clk,
		start: clk.Now(),
	}
}

// Add records a stage pivot.
func (t *Timer) Add(name string) {
	t.Lock()
	defer t.Unlock()

	t.names = append(t.names, name)
	t.pivots = append(t.pivots, t.clk.Now())
}

// Total returns the time since the timer started.
func (t *Timer) Total() time.Duration {
	return t.clk.Now().Sub(t.start)
}

// ToLogFields returns stage durations as log fields.
func (t *Timer) ToLogFields() log.Fields {
	m := t.ToMap()
	f := make(log.Fields, len(m))
	for k, v := range m {
		f[k] = v
	}
	return f
}

// ToMap returns stage durations keyed by stage name plus "total".
func (t *Timer) ToMap() map[string]time.Duration {
	t.Lock()
	defer t.Unlock()

	lp := len(t.pivots)
	m := make(map[string]time.Duration, 1+lp)
	last := t.start
	for i := 0; i != lp; i++ {
		m[t.names[i]] += t.pivots[i].Sub(last)
		last = t.pivots[i]
	}
	if lp > 0 {
		m["total"] = last.Sub(t.start)
	}
	return m
}
