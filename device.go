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
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// Device is the small capability set calls for: enough surface
// for the synchronization engine to drive one device without knowing
// whether it is a real adb-reachable handset or, in tests, an
// in-memory fake. A single Device value must not be shared across
// concurrent installs; that invariant is enforced by the caller, not here.
type Device interface {
	ShellExecute(ctx context.Context, command string) (string, error)
	StartSession(ctx context.Context, command string) (ShellSession, error)

	PushFile(ctx context.Context, devicePath, localSource string) error
	MkDirP(ctx context.Context, path string) error
	ListDir(ctx context.Context, root string) ([]string, error)

	GetProp(ctx context.Context, prop string) (string, error)
	GetPackageInfo(ctx context.Context, pkg string) (*PackageInfo, error)
	GetSignature(ctx context.Context, apkPath string) (string, error)

	InstallApk(ctx context.Context, localApkPath string) error
	Stop(ctx context.Context, pkg string) error
	Kill(ctx context.Context, pkg, process string) (KillOutcome, error)

	// Serial identifies the device for logging and event targets.
	Serial() string
}

// agentPackage is the package name the agent is published under; its
// presence on the device is probed with "pm path" the same way any
// other installed package would be.
const agentPackage = "com.facebook.buck.android.agent"

// adbDevice is the real Device implementation: it composes shell
// commands and dispatches them through an external adb-compatible
// binary, grounded on the command-composition shape of the ADB
// tooling snippets in other_examples (ExecSerial's "-s <serial>"
// injection). Device discovery/selection is out of scope here, so
// adbDevice always targets an already-chosen serial.
type adbDevice struct {
	adbPath string
	serial  string

	agentOnce sync.Once
	agentPath string
	agentErr  error

	portCounter      *atomic.Int64
	textSecretKeySize int
}

// NewAdbDevice returns a Device that drives serial through adbPath (or
// "adb" from $PATH if empty). portCounter is the process-wide agent
// port counter the installer facade owns and shares across every
// device; textSecretKeySize is the agent's fixed
// secret-key length.
func NewAdbDevice(adbPath, serial string, portCounter *atomic.Int64, textSecretKeySize int) Device {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &adbDevice{
		adbPath:           adbPath,
		serial:            serial,
		portCounter:       portCounter,
		textSecretKeySize: textSecretKeySize,
	}
}

func (d *adbDevice) Serial() string { return d.serial }

func (d *adbDevice) args(a ...string) []string {
	return append([]string{"-s", d.serial}, a...)
}

func (d *adbDevice) ShellExecute(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, d.adbPath, d.args("shell", command)...)
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return string(out), fmt.Errorf("adb shell on %s: %w: %v", d.serial, ErrDeviceProtocol, err)
		}
	}
	return string(out), nil
}

func (d *adbDevice) StartSession(ctx context.Context, command string) (ShellSession, error) {
	cmd := exec.CommandContext(ctx, d.adbPath, d.args("shell", command)...)
	cmd.Env = os.Environ()
	return startProcessSession(cmd)
}

func (d *adbDevice) openForward(ctx context.Context, port int) (func() error, error) {
	addr := fmt.Sprintf("tcp:%d", port)
	cmd := exec.CommandContext(ctx, d.adbPath, d.args("forward", addr, addr)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("adb forward %s: %w: %v: %s", addr, ErrDeviceProtocol, err, out)
	}
	return func() error {
		rm := exec.Command(d.adbPath, d.args("forward", "--remove", addr)...)
		_, err := rm.CombinedOutput()
		return err
	}, nil
}

func (d *adbDevice) agent(ctx context.Context) (string, error) {
	d.agentOnce.Do(func() {
		d.agentPath, d.agentErr = d.ensureAgentInstalled(ctx)
	})
	return d.agentPath, d.agentErr
}

// ensureAgentInstalled probes for the agent package on first use and
// builds the agent's command prefix from its apk path; the result (or
// the error) is memoized by agentOnce for the remainder of the device's
// lifetime. It does not install the agent: when the package is absent
// it returns an ErrPrecondition error.
func (d *adbDevice) ensureAgentInstalled(ctx context.Context) (string, error) {
	info, err := d.GetPackageInfo(ctx, agentPackage)
	if err != nil {
		return "", fmt.Errorf("probe agent package: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("agent package %s is not installed on %s: %w", agentPackage, d.serial, ErrPrecondition)
	}
	return "app_process " + strings.TrimSuffix(info.APKPath, ".apk") + " com.facebook.buck.android.agent.AgentMain", nil
}

func (d *adbDevice) PushFile(ctx context.Context, devicePath, localSource string) error {
	agentPath, err := d.agent(ctx)
	if err != nil {
		return err
	}
	ch := &AgentChannel{
		Device:            d,
		Forwarder:         forwarderFunc(d.openForward),
		AgentPath:         agentPath,
		PortCounter:       d.portCounter,
		TextSecretKeySize: d.textSecretKeySize,
	}
	return ch.InstallFile(ctx, devicePath, localSource)
}

func (d *adbDevice) MkDirP(ctx context.Context, path string) error {
	agentPath, err := d.agent(ctx)
	if err != nil {
		return err
	}
	return MkDirP(ctx, d, agentPath, path)
}

func (d *adbDevice) ListDir(ctx context.Context, root string) ([]string, error) {
	out, err := ExecuteChecked(ctx, d, fmt.Sprintf("ls -R %s | cat", shellQuote(root)))
	if err != nil {
		return nil, err
	}
	return ParseDirRecursive(out, root)
}

func (d *adbDevice) GetProp(ctx context.Context, prop string) (string, error) {
	out, err := ExecuteChecked(ctx, d, fmt.Sprintf("getprop %s", shellQuote(prop)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (d *adbDevice) GetPackageInfo(ctx context.Context, pkg string) (*PackageInfo, error) {
	pathOut, err := d.ShellExecute(ctx, fmt.Sprintf("pm path %s", shellQuote(pkg)))
	if err != nil {
		return nil, err
	}
	dumpOut, err := d.ShellExecute(ctx, fmt.Sprintf("dumpsys package %s", shellQuote(pkg)))
	if err != nil {
		return nil, err
	}
	return ParsePackageInfo(pathOut+dumpOut, pkg)
}

func (d *adbDevice) GetSignature(ctx context.Context, apkPath string) (string, error) {
	agentPath, err := d.agent(ctx)
	if err != nil {
		return "", err
	}
	out, err := ExecuteChecked(ctx, d, fmt.Sprintf("%s get-signature %s", agentPath, shellQuote(apkPath)))
	if err != nil {
		return "", err
	}
	return checkSingleLineSignature(out)
}

// checkSingleLineSignature enforces only the one documented
// requirement on get-signature output — no embedded \r or \n — rather
// than generalizing to a broader control-character check.
func checkSingleLineSignature(out string) (string, error) {
	trimmed := strings.TrimSpace(out)
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("get-signature: %w: output contains a line break", ErrMalformedInput)
	}
	return trimmed, nil
}

func (d *adbDevice) InstallApk(ctx context.Context, localApkPath string) error {
	cmd := exec.CommandContext(ctx, d.adbPath, d.args("install", "-r", localApkPath)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("install %s on %s: %w: %v: %s", localApkPath, d.serial, ErrDeviceProtocol, err, out)
	}
	return nil
}

func (d *adbDevice) Stop(ctx context.Context, pkg string) error {
	_, err := ExecuteChecked(ctx, d, fmt.Sprintf("am force-stop %s", shellQuote(pkg)))
	return err
}

func (d *adbDevice) Kill(ctx context.Context, pkg, process string) (KillOutcome, error) {
	_, err := ExecuteChecked(ctx, d, fmt.Sprintf("run-as %s killall %s", shellQuote(pkg), shellQuote(process)))
	if err == nil {
		return KillOutcomeKilled, nil
	}
	if strings.Contains(err.Error(), "No such process") {
		return KillOutcomeNotRunning, nil
	}
	return KillOutcomeError, fmt.Errorf("kill %s on %s: %w: %v", process, d.serial, ErrDeviceProtocol, err)
}

type forwarderFunc func(ctx context.Context, port int) (func() error, error)

func (f forwarderFunc) OpenForward(ctx context.Context, port int) (func() error, error) {
	return f(ctx, port)
}
