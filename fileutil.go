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

import "os"

// exists reports whether filename names an existing host-side file.
// Nothing in the package calls it: the synchronization engine's
// temporary metadata files come from os.CreateTemp.
func exists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
