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

import "bytes"

const resourcesMetadataPath = "resources/metadata.txt"

// ResourcesPlan computes the files-to-install and metadata-to-install
// maps for a ResourcesBlock: one resources/<hash>.apk per
// archive, and a top-level metadata.txt naming them all.
func ResourcesPlan(block *ResourcesBlock) (*InstallPlan, error) {
	plan := newInstallPlan()
	if block == nil {
		return plan, nil
	}

	var top bytes.Buffer
	sw := &ssvWriter{w: &top}
	for _, a := range block.Archives {
		devicePath := "resources/" + a.Hash + ".apk"
		plan.Files[devicePath] = a.LocalPath
		sw.WriteString(a.Hash)
	}
	plan.Metadata[resourcesMetadataPath] = top.Bytes()
	return plan, nil
}
