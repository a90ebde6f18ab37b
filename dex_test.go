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
	"strings"
	"testing"
)

func TestDexPlan(t *testing.T) {
	block := &DexBlock{Entries: []DexEntry{
		{Name: "secondary-1.dex", Hash: "aaaa"},
		{Name: "secondary-2.dex", Hash: "bbbb"},
	}}
	plan, err := DexPlan(block, "/build/dex-out")
	if err != nil {
		t.Fatalf("DexPlan: %v", err)
	}
	if got, want := plan.Files["secondary-dex/aaaa.dex.jar"], "/build/dex-out/secondary-1.dex"; got != want {
		t.Fatalf("got source %q, want %q", got, want)
	}
	if got, want := plan.Files["secondary-dex/bbbb.dex.jar"], "/build/dex-out/secondary-2.dex"; got != want {
		t.Fatalf("got source %q, want %q", got, want)
	}
	meta, ok := plan.Metadata[dexMetadataPath]
	if !ok {
		t.Fatal("missing metadata entry")
	}
	if !strings.Contains(string(meta), "secondary-1.dex aaaa") || !strings.Contains(string(meta), "secondary-2.dex bbbb") {
		t.Fatalf("expected metadata keyed by original source name, got %q", meta)
	}
}

func TestDexPlanNilBlock(t *testing.T) {
	plan, err := DexPlan(nil, "/build/dex-out")
	if err != nil {
		t.Fatalf("DexPlan: %v", err)
	}
	if len(plan.Files) != 0 || len(plan.Metadata) != 0 {
		t.Fatalf("expected an empty plan for a nil block, got %+v", plan)
	}
}
