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

package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWriteFileAtomic(t *testing.T) {
	Convey("atomic writes replace the target and leave no temp files", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.json")
		So(Exist(path), ShouldBeFalse)

		So(WriteFileAtomic(path, []byte("one"), 0644), ShouldBeNil)
		So(Exist(path), ShouldBeTrue)
		So(WriteFileAtomic(path, []byte("two"), 0644), ShouldBeNil)

		b, err := ioutil.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "two")

		fi, err := os.Stat(path)
		So(err, ShouldBeNil)
		So(fi.Mode().Perm(), ShouldEqual, os.FileMode(0644))

		entries, err := ioutil.ReadDir(dir)
		So(err, ShouldBeNil)
		So(entries, ShouldHaveLength, 1)
	})
	Convey("failed writes clean up", t, func() {
		err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "a.json"), []byte("x"), 0644)
		So(err, ShouldNotBeNil)
	})
	Convey("temp names are recognised", t, func() {
		So(IsTemp("/x/.tmp-a.json-123"), ShouldBeTrue)
		So(IsTemp("/x/a.json"), ShouldBeFalse)
	})
}
