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
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// fakeDevice is an in-memory Device, letting the synchronization
// engine and installer facade be tested against any implementation of the
// small Device capability set. It keeps a flat map of device-relative
// path to content under a single staging root, plus canned property
// and package-info responses, and records every shell command it is
// asked to run for assertions.
type fakeDevice struct {
	mu sync.Mutex

	files map[string][]byte
	props map[string]string
	pkg   map[string]*PackageInfo
	// sigOf maps an apk path (local or on-device) to the signature
	// GetSignature should report for it.
	sigOf map[string]string

	commands []string

	killOutcome KillOutcome
	killErr     error

	serial string
}

func newFakeDevice(serial string) *fakeDevice {
	return &fakeDevice{
		files:       map[string][]byte{},
		props:       map[string]string{},
		pkg:         map[string]*PackageInfo{},
		sigOf:       map[string]string{},
		killOutcome: KillOutcomeKilled,
		serial:      serial,
	}
}

func (d *fakeDevice) Serial() string { return d.serial }

func (d *fakeDevice) record(cmd string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
}

func (d *fakeDevice) ShellExecute(ctx context.Context, command string) (string, error) {
	d.record(command)
	if strings.HasSuffix(command, exitStatusSuffix) {
		// Simulate a command that ran and exited zero, satisfying
		// ExecuteChecked's status-suffix contract for callers (like
		// MkDirP and the agent's post-transfer chmod) that check it.
		return ":0", nil
	}
	return "", nil
}

func (d *fakeDevice) StartSession(ctx context.Context, command string) (ShellSession, error) {
	d.record(command)
	return nil, fmt.Errorf("fakeDevice: StartSession not supported: %w", ErrPrecondition)
}

func (d *fakeDevice) PushFile(ctx context.Context, devicePath, localSource string) error {
	content, err := os.ReadFile(localSource)
	if err != nil {
		return fmt.Errorf("fakeDevice push %s: %w", devicePath, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[devicePath] = content
	return nil
}

func (d *fakeDevice) MkDirP(ctx context.Context, path string) error {
	d.record("mkdir-p " + path)
	return nil
}

func (d *fakeDevice) ListDir(ctx context.Context, root string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root = strings.TrimSuffix(root, "/")
	var out []string
	for p := range d.files {
		if strings.HasPrefix(p, root+"/") {
			out = append(out, strings.TrimPrefix(p, root+"/"))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *fakeDevice) GetProp(ctx context.Context, prop string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props[prop], nil
}

func (d *fakeDevice) GetPackageInfo(ctx context.Context, pkg string) (*PackageInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pkg[pkg], nil
}

func (d *fakeDevice) GetSignature(ctx context.Context, apkPath string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sig, ok := d.sigOf[apkPath]; ok {
		return sig, nil
	}
	if content, ok := d.files[apkPath]; ok {
		return string(content), nil
	}
	return "", fmt.Errorf("fakeDevice get-signature %s: %w: unknown path", apkPath, ErrPrecondition)
}

func (d *fakeDevice) InstallApk(ctx context.Context, localApkPath string) error {
	d.record("install " + localApkPath)
	return nil
}

func (d *fakeDevice) Stop(ctx context.Context, pkg string) error {
	d.record("force-stop " + pkg)
	return nil
}

func (d *fakeDevice) Kill(ctx context.Context, pkg, process string) (KillOutcome, error) {
	d.record(fmt.Sprintf("kill %s/%s", pkg, process))
	return d.killOutcome, d.killErr
}

// writeLocalApk creates a scratch file under dir whose content is
// sigContent (used both as the apk's bytes and, via the fake's
// GetSignature fallback, as its "signature").
func writeLocalApk(dir, name, content string) (string, error) {
	p := path.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", err
	}
	return p, nil
}
