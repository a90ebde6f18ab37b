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

import "github.com/golang/glog"

// wsbytes is a byte-indexed whitespace table; tokenizing dumpsys and
// property output this way avoids a per-rune type switch in a loop
// that otherwise runs over every line of a device dump.
var wsbytes = [256]bool{' ': true, '\t': true, '\n': true, '\r': true}

func isWhitespace(b byte) bool { return wsbytes[b] }

// splitSpaces tokenizes s on runs of whitespace, used to pull the
// version-code token out of a "versionCode=42 targetSdk=23" field
//.
func splitSpaces(s string) []string {
	var r []string
	tokStart := -1
	for i := 0; i < len(s); i++ {
		if isWhitespace(s[i]) {
			if tokStart >= 0 {
				r = append(r, s[tokStart:i])
				tokStart = -1
			}
		} else if tokStart < 0 {
			tokStart = i
		}
	}
	if tokStart >= 0 {
		r = append(r, s[tokStart:])
	}
	glog.V(2).Infof("splitSpaces(%q)=%q", s, r)
	return r
}
