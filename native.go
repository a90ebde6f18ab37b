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
	"context"
	"fmt"
	"path"
)

const nativeTopMetadataPath = "native-libs/metadata.txt"

// PropGetter is the capability NativePlan needs from a device: reading
// a system property. It is satisfied by Device, but kept narrow so the
// helper's signature documents exactly what it touches (:
// "these helpers ... perform no I/O to the device except the native
// helper's property read").
type PropGetter interface {
	GetProp(ctx context.Context, prop string) (string, error)
}

// deviceABIs returns the device's supported ABIs in preference order,
// querying ro.product.cpu.abilist first and falling back to
// ro.product.cpu.abi (+ ro.product.cpu.abi2) on older images.
func deviceABIs(ctx context.Context, dev PropGetter) ([]string, error) {
	abilist, err := dev.GetProp(ctx, "ro.product.cpu.abilist")
	if err != nil {
		return nil, fmt.Errorf("read ro.product.cpu.abilist: %w", err)
	}
	if abilist != "" {
		return splitCSV(abilist), nil
	}

	abi, err := dev.GetProp(ctx, "ro.product.cpu.abi")
	if err != nil {
		return nil, fmt.Errorf("read ro.product.cpu.abi: %w", err)
	}
	if abi == "" {
		return nil, fmt.Errorf("nativePlan: %w: device reports no ABI", ErrMalformedInput)
	}
	abis := []string{abi}
	abi2, err := dev.GetProp(ctx, "ro.product.cpu.abi2")
	if err != nil {
		return nil, fmt.Errorf("read ro.product.cpu.abi2: %w", err)
	}
	if abi2 != "" {
		abis = append(abis, abi2)
	}
	return abis, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// NativePlan computes the files-to-install and metadata-to-install
// maps for a NativeBlock, selecting the ABIs the device supports that
// the app also ships, in the device's preferred order.
// sourceDir is the local directory libraries are shipped under, laid
// out as "<sourceDir>/<abi>/<soname>".
func NativePlan(ctx context.Context, dev PropGetter, block *NativeBlock, sourceDir string) (*InstallPlan, error) {
	plan := newInstallPlan()
	if block == nil {
		return plan, nil
	}

	deviceOrder, err := deviceABIs(ctx, dev)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, abi := range deviceOrder {
		if _, ok := block.LibsByABI[abi]; ok {
			selected = append(selected, abi)
		}
	}

	for _, abi := range selected {
		libs := block.LibsByABI[abi]
		names := make(map[string]string, len(libs))
		for _, lib := range libs {
			devicePath := path.Join("native-libs", abi, lib.Hash+".so")
			plan.Files[devicePath] = path.Join(sourceDir, abi, lib.SoName)
			names[lib.SoName] = lib.Hash
		}
		var buf bytes.Buffer
		if err := SerializeExoMetadata(&buf, names); err != nil {
			return nil, err
		}
		plan.Metadata[path.Join("native-libs", abi, "metadata.txt")] = buf.Bytes()
	}

	var top bytes.Buffer
	sw := &ssvWriter{w: &top}
	for _, abi := range selected {
		sw.WriteString(abi)
	}
	plan.Metadata[nativeTopMetadataPath] = top.Bytes()

	return plan, nil
}
