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

// Logf logs a device-crossing operation (shell exec, push, delete,
// kill) at verbosity 1 (-v=1).
func Logf(f string, a ...interface{}) {
	glog.V(1).Infof(f, a...)
}

// Logvf logs parse/diff detail — the chatty half of the log — at a
// higher verbosity than Logf so -v=1 stays readable.
func Logvf(f string, a ...interface{}) {
	glog.V(2).Infof(f, a...)
}

// Warn logs a benign condition: one reported to the caller through the
// return value but that must never abort a device install.
func Warn(f string, a ...interface{}) {
	glog.Warningf(f, a...)
}
