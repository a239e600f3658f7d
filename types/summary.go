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

	"github.com/pkg/errors"
)

// Columns names the money columns of a domain summary.
type Columns struct {
	Rev    string
	Cost   string
	Margin string
}

// RevKey returns the summary key of the revenue total.
func (c Columns) RevKey() string { return c.Rev + "_total" }

// CostKey returns the summary key of the cost total.
func (c Columns) CostKey() string { return c.Cost + "_total" }

// Valid reports whether all column names are set.
func (c Columns) Valid() bool {
	return c.Rev != "" && c.Cost != "" && c.Margin != ""
}

// Summary is the document persisted after the last committed segment.
type Summary struct {
	TS        string
	Segments  uint64
	Rev       float64
	Cost      float64
	Margin    float64
	ChainLast string

	Columns Columns
}

// NewSummary builds a summary from unrounded totals. Totals are rounded to
// cents and the margin is derived from the rounded totals.
func NewSummary(cols Columns, ts string, segments uint64, rev, cost float64, tip string) *Summary {
	r, c := Round2(rev), Round2(cost)
	return &Summary{
		TS:        ts,
		Segments:  segments,
		Rev:       r,
		Cost:      c,
		Margin:    r - c,
		ChainLast: tip,
		Columns:   cols,
	}
}

// MarshalJSON implements json.Marshaler with key order
// ts, segments, <rev>_total, <cost>_total, <margin>, chain_last.
func (s *Summary) MarshalJSON() ([]byte, error) {
	if !s.Columns.Valid() {
		return nil, ErrMissingColumns
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range []struct {
		k string
		v interface{}
	}{
		{"ts", s.TS},
		{"segments", s.Segments},
		{s.Columns.RevKey(), s.Rev},
		{s.Columns.CostKey(), s.Cost},
		{s.Columns.Margin, s.Margin},
		{"chain_last", s.ChainLast},
	} {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := Marshal(kv.k)
		if err != nil {
			return nil, err
		}
		v, err := Marshal(kv.v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode summary field %s", kv.k)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
