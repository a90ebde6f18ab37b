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
	"path"
)

// dexMetadataPath is where the secondary-dex metadata file lives under
// the staging root.
const dexMetadataPath = "secondary-dex/metadata.txt"

// DexPlan computes the files-to-install and metadata-to-install maps
// for a DexBlock. It performs no device I/O: it is a
// pure function of the block and the local source directory that
// resolves each listed dex's filename.
func DexPlan(block *DexBlock, sourceDir string) (*InstallPlan, error) {
	plan := newInstallPlan()
	if block == nil {
		return plan, nil
	}

	names := make(map[string]string, len(block.Entries))
	for _, e := range block.Entries {
		devicePath := path.Join("secondary-dex", e.Hash+".dex.jar")
		plan.Files[devicePath] = path.Join(sourceDir, e.Name)
		names[e.Name] = e.Hash
	}

	var buf bytes.Buffer
	if err := SerializeExoMetadata(&buf, names); err != nil {
		return nil, err
	}
	plan.Metadata[dexMetadataPath] = buf.Bytes()
	return plan, nil
}
