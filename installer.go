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
	"sync"
	"sync/atomic"
)

// DeviceResult is one device's outcome from an Installer.Install call.
type DeviceResult struct {
	Device  Device
	Result  *Result
	Err     error
	Success bool
}

// InstallResult aggregates every device's outcome; the overall install
// is successful iff every device succeeded.
type InstallResult struct {
	Package string
	Devices []DeviceResult
}

// Success reports whether every device succeeded.
func (r *InstallResult) Success() bool {
	for _, d := range r.Devices {
		if !d.Success {
			return false
		}
	}
	return true
}

// Installer fans a single-device install out across every
// selected device concurrently; parallelism is across devices only —
// a single device install is strictly sequential. An
// Installer value is single-use: Install must be called at most once.
type Installer struct {
	Listener EventListener

	// PortCounter is the process-wide agent-port counter, owned here
	// and passed by reference into every per-device install.
	// NewPortCounter returns a fresh one if the caller doesn't
	// supply one.
	PortCounter *atomic.Int64

	mu    sync.Mutex
	used  bool
	stats *spanStats
}

// NewInstaller returns a ready-to-use, single-use Installer.
func NewInstaller() *Installer {
	return &Installer{
		Listener:    NopListener{},
		PortCounter: NewPortCounter(),
		stats:       newSpanStats(),
	}
}

// Install runs Sync on each of devices in its own goroutine and waits
// for all of them to finish, emitting install-started before dispatch
// and install-finished once every device has reported in.
func (in *Installer) Install(ctx context.Context, pkg string, manifest *Manifest, localApkPath, processName string, devices []Device) (*InstallResult, error) {
	in.mu.Lock()
	if in.used {
		in.mu.Unlock()
		return nil, fmt.Errorf("installer: %w: Install already called on this instance", ErrPrecondition)
	}
	in.used = true
	in.mu.Unlock()

	if err := ValidatePackageName(pkg); err != nil {
		return nil, err
	}

	in.Listener.InstallStarted(pkg)

	results := make([]DeviceResult, len(devices))
	var wg sync.WaitGroup
	wg.Add(len(devices))
	for i, dev := range devices {
		i, dev := i, dev
		go func() {
			defer wg.Done()
			req := &SyncRequest{
				Package:      pkg,
				LocalApkPath: localApkPath,
				ProcessName:  processName,
				Manifest:     manifest,
			}
			res, err := Sync(ctx, dev, req, in.stats)
			results[i] = DeviceResult{
				Device:  dev,
				Result:  res,
				Err:     err,
				Success: err == nil,
			}
			if err != nil {
				Warn("sync failed on %s: %v", dev.Serial(), err)
			}
		}()
	}
	wg.Wait()

	out := &InstallResult{Package: pkg, Devices: results}
	in.Listener.InstallFinished(pkg, out.Success(), pkg)
	return out, nil
}
