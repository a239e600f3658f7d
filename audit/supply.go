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

package audit

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/jmoiron/jsonq"
	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/journal"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
)

const maxLineSize = 1 << 20

// Supply folds the MeshCredit journal under dir: mint and burn events carry
// an amount, mesh segment lines carry mint and burn figures. Other lines are
// ignored. An absent journal holds no supply.
func Supply(dir string) (supply float64, err error) {
	path := journal.Path(dir, conf.DomainMesh)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		data := map[string]interface{}{}
		if err = json.Unmarshal(sc.Bytes(), &data); err != nil {
			return 0, errors.Wrapf(journal.ErrCorruptedEntry, "%s line %d: %v", path, line, err)
		}
		jq := jsonq.NewQuery(data)
		event, _ := jq.String("event")
		switch event {
		case "mint", "burn":
			amount, err := jq.Float("amount")
			if err != nil {
				return 0, errors.Wrapf(journal.ErrCorruptedEntry, "%s line %d: %s without amount", path, line, event)
			}
			if event == "burn" {
				amount = -amount
			}
			supply += amount
		case string(types.KindMesh):
			mint, err := jq.Float("mint")
			if err != nil {
				return 0, errors.Wrapf(journal.ErrCorruptedEntry, "%s line %d: mesh without mint", path, line)
			}
			burn, err := jq.Float("burn")
			if err != nil {
				return 0, errors.Wrapf(journal.ErrCorruptedEntry, "%s line %d: mesh without burn", path, line)
			}
			supply += mint - burn
		}
	}
	if err = sc.Err(); err != nil {
		return 0, errors.Wrapf(err, "scan %s", path)
	}
	return types.Round6(supply), nil
}
