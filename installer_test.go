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
	"context"
	"testing"
)

func TestInstallerFansOutAcrossDevices(t *testing.T) {
	dir := t.TempDir()
	apk, err := writeLocalApk(dir, "app.apk", "apk-bytes")
	if err != nil {
		t.Fatalf("writeLocalApk: %v", err)
	}

	dev1 := newFakeDevice("device-1")
	dev2 := newFakeDevice("device-2")
	dev1.files[apk] = []byte("apk-bytes")
	dev2.files[apk] = []byte("apk-bytes")
	dev1.pkg["com.example.app"] = &PackageInfo{APKPath: apk, VersionCode: "1"}
	dev2.pkg["com.example.app"] = &PackageInfo{APKPath: apk, VersionCode: "1"}

	in := NewInstaller()
	result, err := in.Install(context.Background(), "com.example.app", &Manifest{}, apk, "", []Device{dev1, dev2})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(result.Devices) != 2 {
		t.Fatalf("expected 2 device results, got %d", len(result.Devices))
	}
	if !result.Success() {
		t.Fatalf("expected every device to succeed, got %+v", result.Devices)
	}
}

func TestInstallerRejectsSecondUse(t *testing.T) {
	in := NewInstaller()
	dev := newFakeDevice("device-1")
	ctx := context.Background()

	// The fake's InstallApk never touches the filesystem, so this first
	// call completes regardless of whether the apk path is real; only
	// the single-use guard is under test here.
	if _, err := in.Install(ctx, "com.example.app", &Manifest{}, "/nonexistent.apk", "", []Device{dev}); err != nil {
		t.Fatalf("first Install call: %v", err)
	}
	if _, err := in.Install(ctx, "com.example.app", &Manifest{}, "/nonexistent.apk", "", []Device{dev}); err == nil {
		t.Fatal("expected the second Install call on the same Installer to be rejected")
	}
}

func TestInstallerRejectsMalformedPackageName(t *testing.T) {
	in := NewInstaller()
	if _, err := in.Install(context.Background(), "not_a_package", &Manifest{}, "/x.apk", "", nil); err == nil {
		t.Fatal("expected a precondition error for a package name with no dot-separated segments")
	}
}
