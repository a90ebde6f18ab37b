// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exoinstall

import (
	"bytes"
	"testing"
)

func TestSsvWriter(t *testing.T) {
	var buf bytes.Buffer
	sw := &ssvWriter{w: &buf}
	sw.WriteString("arm64-v8a")
	sw.WriteString("armeabi-v7a")
	sw.Write([]byte("armeabi"))

	want := "arm64-v8a armeabi-v7a armeabi"
	if got := buf.String(); got != want {
		t.Errorf("ssvWriter wrote %q, want %q", got, want)
	}
}
