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

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lockName is the sentinel filename the installer never deletes
//: present_set after a successful install always equals
// wanted_set ∪ {any path whose final segment equals "lock"}.
const lockName = "lock"

// SyncRequest bundles everything one device's synchronization pass
// needs beyond the Device itself.
type SyncRequest struct {
	Package string
	// LocalApkPath is the host-built main package, used both to push
	// for a full reinstall and as the input to the local half of the
	// signature comparison.
	LocalApkPath string
	// ProcessName, if non-empty, lets the engine kill a specific
	// process instead of force-stopping the whole package.
	ProcessName string
	Manifest    *Manifest
}

// Result is what one device's synchronization pass produced, used by
// both tests and the installer facade's per-device outcome.
type Result struct {
	Pushed      []string
	Deleted     []string
	Reinstalled bool
	Kill        KillOutcome
}

// Sync runs the full per-device install sequence of against
// dev. Any non-benign failure aborts the device and is returned as-is;
// benign conditions (a "not running" kill target) are recorded in the
// Result instead.
func Sync(ctx context.Context, dev Device, req *SyncRequest, stats *spanStats) (*Result, error) {
	if err := ValidatePackageName(req.Package); err != nil {
		return nil, err
	}
	result := &Result{}

	if hasActiveBlock(req.Manifest) {
		if err := syncAssets(ctx, dev, req, result, stats); err != nil {
			return nil, err
		}
	}

	end := stats.span("signature-check")
	reinstall, err := shouldAppBeInstalled(ctx, dev, req.Package, req.LocalApkPath)
	end()
	if err != nil {
		return nil, err
	}
	result.Reinstalled = reinstall

	if reinstall {
		end := stats.span("package-install")
		if err := dev.InstallApk(ctx, req.LocalApkPath); err != nil {
			return nil, err
		}
		end()
	}

	end = stats.span("app-kill")
	defer end()
	if reinstall || req.ProcessName == "" {
		if err := dev.Stop(ctx, req.Package); err != nil {
			return nil, err
		}
		result.Kill = KillOutcomeKilled
		return result, nil
	}
	outcome, err := dev.Kill(ctx, req.Package, req.ProcessName)
	if err != nil {
		return nil, err
	}
	result.Kill = outcome
	if outcome == KillOutcomeNotRunning {
		Warn("kill %s/%s: process not running", req.Package, req.ProcessName)
	}
	return result, nil
}

func hasActiveBlock(m *Manifest) bool {
	return m != nil && (m.Dex != nil || m.Native != nil || m.Resources != nil)
}

// syncAssets implements: ensure the staging root,
// list the present set, diff it against the union of every active
// block's plan, create directories, push missing files, delete
// unwanted files, then rewrite metadata.
func syncAssets(ctx context.Context, dev Device, req *SyncRequest, result *Result, stats *spanStats) error {
	root := StagingRoot(req.Package)
	if err := dev.MkDirP(ctx, root); err != nil {
		return fmt.Errorf("sync %s: %w", req.Package, err)
	}

	present, err := dev.ListDir(ctx, root)
	if err != nil {
		return fmt.Errorf("sync %s: %w", req.Package, err)
	}
	presentSet := toSet(present)

	plan := newInstallPlan()
	m := req.Manifest

	if m.Dex != nil {
		end := stats.span("dex-multi-install")
		p, err := DexPlan(m.Dex, m.DexSourceDir)
		end()
		if err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
		plan.merge(p)
	}
	if m.Native != nil {
		end := stats.span("native-multi-install")
		p, err := NativePlan(ctx, dev, m.Native, m.NativeSourceDir)
		end()
		if err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
		plan.merge(p)
	}
	if m.Resources != nil {
		end := stats.span("resources-multi-install")
		p, err := ResourcesPlan(m.Resources)
		end()
		if err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
		plan.merge(p)
	}

	wanted := map[string]bool{}
	for k := range plan.Files {
		wanted[k] = true
	}
	for k := range plan.Metadata {
		wanted[k] = true
	}

	// Directory creation happens-before any push into that directory
	//; batched and de-duplicated across the whole block.
	dirs := map[string]bool{}
	for k := range plan.Files {
		dirs[path.Dir(k)] = true
	}
	for k := range plan.Metadata {
		dirs[path.Dir(k)] = true
	}
	sortedDirs := make([]string, 0, len(dirs))
	for d := range dirs {
		sortedDirs = append(sortedDirs, d)
	}
	sort.Strings(sortedDirs)
	for _, d := range sortedDirs {
		if d == "." {
			continue
		}
		if err := dev.MkDirP(ctx, path.Join(root, d)); err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
	}

	// Push missing: a file already present at its hash-addressed path
	// is considered up to date without rehashing.
	var pushedFiles []string
	for devicePath, localSource := range plan.Files {
		if presentSet[devicePath] {
			continue
		}
		end := stats.span("per-file-install")
		err := dev.PushFile(ctx, path.Join(root, devicePath), localSource)
		end()
		if err != nil {
			return fmt.Errorf("sync %s: push %s: %w", req.Package, devicePath, err)
		}
		pushedFiles = append(pushedFiles, devicePath)
	}

	// Delete unwanted: every present path neither wanted nor the lock
	// sentinel, grouped by parent directory.
	byDir := map[string][]string{}
	for _, p := range present {
		if wanted[p] {
			continue
		}
		if path.Base(p) == lockName {
			continue
		}
		d := path.Dir(p)
		byDir[d] = append(byDir[d], path.Base(p))
	}
	var deleted []string
	dirKeys := make([]string, 0, len(byDir))
	for d := range byDir {
		dirKeys = append(dirKeys, d)
	}
	sort.Strings(dirKeys)
	for _, d := range dirKeys {
		names := byDir[d]
		sort.Strings(names)
		if err := RmFiles(ctx, dev, path.Join(root, d), names); err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
		for _, n := range names {
			deleted = append(deleted, path.Join(d, n))
		}
	}

	// Metadata writes happen-after data writes: they are
	// always rewritten, not subject to the present-set skip, because
	// their content can change even when their path does not.
	metaKeys := make([]string, 0, len(plan.Metadata))
	for k := range plan.Metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, devicePath := range metaKeys {
		content := plan.Metadata[devicePath]
		logMetadataDiff(ctx, dev, path.Join(root, devicePath), content)
		tmp, err := writeTempFile(content)
		if err != nil {
			return fmt.Errorf("sync %s: %w", req.Package, err)
		}
		end := stats.span("per-file-install")
		err = dev.PushFile(ctx, path.Join(root, devicePath), tmp)
		end()
		os.Remove(tmp)
		if err != nil {
			return fmt.Errorf("sync %s: push metadata %s: %w", req.Package, devicePath, err)
		}
	}

	result.Pushed = append(pushedFiles, metaKeys...)
	result.Deleted = deleted
	return nil
}

// logMetadataDiff reads the previous content of an on-device metadata
// file (tolerating its absence on a fresh install) and logs an inline
// diff (diffmatchpatch's DiffPrettyText) against the newly-serialized
// content at V(2), giving an
// operator a readable explanation of why a device is converging.
func logMetadataDiff(ctx context.Context, dev Device, devicePath string, newContent []byte) {
	old, err := dev.ShellExecute(ctx, fmt.Sprintf("cat %s 2>/dev/null", shellQuote(devicePath)))
	if err != nil {
		return
	}
	if old == string(newContent) {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, string(newContent), true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	Logvf("metadata diff for %s:\n%s", devicePath, dmp.DiffPrettyText(diffs))
}

func writeTempFile(content []byte) (string, error) {
	f, err := os.CreateTemp("", "exoinstall-metadata-*")
	if err != nil {
		return "", fmt.Errorf("write temp metadata file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp metadata file: %w", err)
	}
	return f.Name(), nil
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// signatureCheckPath is a scratch location under the staging root used
// only to run get-signature against the locally-built apk; it is
// removed immediately after the check so it never lingers as an
// unwanted file, so it never violates the present-set convergence
// invariant.
const signatureCheckPath = "signature-check.apk"

// shouldAppBeInstalled decides whether the app needs a fresh install:
// absent a PackageInfo the app has never been installed and must be; otherwise
// the locally-built package's signature is compared to the on-device
// apk's signature, and a mismatch means reinstall.
func shouldAppBeInstalled(ctx context.Context, dev Device, pkg, localApkPath string) (bool, error) {
	info, err := dev.GetPackageInfo(ctx, pkg)
	if err != nil {
		return false, err
	}
	if info == nil {
		return true, nil
	}

	root := StagingRoot(pkg)
	tempPath := path.Join(root, signatureCheckPath)
	if err := dev.MkDirP(ctx, root); err != nil {
		return false, err
	}
	if err := dev.PushFile(ctx, tempPath, localApkPath); err != nil {
		return false, fmt.Errorf("shouldAppBeInstalled %s: %w", pkg, err)
	}
	localSig, err := dev.GetSignature(ctx, tempPath)
	if rmErr := RmFiles(ctx, dev, root, []string{signatureCheckPath}); rmErr != nil {
		Warn("remove signature-check scratch file for %s: %v", pkg, rmErr)
	}
	if err != nil {
		return false, fmt.Errorf("shouldAppBeInstalled %s: local signature: %w", pkg, err)
	}

	installedSig, err := dev.GetSignature(ctx, info.APKPath)
	if err != nil {
		return false, fmt.Errorf("shouldAppBeInstalled %s: installed signature: %w", pkg, err)
	}

	return localSig != installedSig, nil
}
