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
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
)

// TimeFormat is the second precision UTC layout of every ledger timestamp.
const TimeFormat = "2006-01-02T15:04:05Z"

// GenesisPrev is the prev value of the first capsule of a chain.
const GenesisPrev = "genesis"

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a TimeFormat timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// Round rounds v half away from zero to the given decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Round6 rounds per-cycle and per-segment figures.
func Round6(v float64) float64 {
	return Round(v, 6)
}

// Round2 rounds summary totals.
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Marshal encodes v as minified JSON without HTML escaping and without the
// trailing newline json.Encoder appends.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// mergeObject appends the fields of the JSON object encoding of ev to the
// envelope object head, keeping key order: envelope first, variant second.
func mergeObject(head interface{}, ev Event) ([]byte, error) {
	h, err := Marshal(head)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	if ev == nil {
		return h, nil
	}
	body, err := Marshal(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s event", ev.Kind())
	}
	if len(body) <= 2 {
		return h, nil
	}
	out := make([]byte, 0, len(h)+len(body))
	out = append(out, h[:len(h)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
