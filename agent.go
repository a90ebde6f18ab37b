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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// initialAgentPort is the first port the process-wide counter hands
// out: a process-wide counter starting at 2828,
// incremented per device. Ports are not returned to a pool.
const initialAgentPort = 2828

// NewPortCounter returns a counter ready to be shared, by reference,
// across every device install the facade dispatches.
func NewPortCounter() *atomic.Int64 {
	c := &atomic.Int64{}
	c.Store(initialAgentPort - 1)
	return c
}

// ShellSession is a still-running shell command whose stdout can be
// consumed incrementally while the command executes, and whose final
// combined output and exit status are available once it completes.
// This is the streaming counterpart to ShellExecutor: the agent
// handshake must observe a secret key and a ready marker on
// stdout *while* "receive-file" is still blocked waiting for the host
// to connect, which a simple run-to-completion exec cannot express.
type ShellSession interface {
	// ReadN blocks until exactly n bytes have been read from stdout
	// since the session started, and returns them.
	ReadN(n int) ([]byte, error)
	// ReadUntil blocks until marker has appeared in the stdout stream,
	// consuming everything up to and including it.
	ReadUntil(marker string) error
	// Wait blocks for the command to exit and returns the command's
	// full output with the exit-status suffix convention checked and
	// stripped, exactly like ExecuteChecked's return contract.
	Wait() (string, error)
}

// processSession runs a real OS subprocess (typically "adb shell ...")
// and exposes its stdout through a shared bufio.Reader, grounded on
// para.go's newParaWorker, which wraps a long-running companion
// process's Stdin/Stdout pipes in the same way.
type processSession struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	outBuf strings.Builder
}

func startProcessSession(cmd *exec.Cmd) (*processSession, error) {
	cmd.Env = os.Environ()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("session stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("session start: %w: %v", ErrDeviceProtocol, err)
	}
	return &processSession{cmd: cmd, stdout: bufio.NewReader(stdout)}, nil
}

func (s *processSession) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		return nil, fmt.Errorf("session read %d bytes: %w: %v", n, ErrDeviceProtocol, err)
	}
	s.outBuf.Write(buf)
	return buf, nil
}

func (s *processSession) ReadUntil(marker string) error {
	var seen strings.Builder
	for {
		b, err := s.stdout.ReadByte()
		if err != nil {
			return fmt.Errorf("session read until %q: %w: %v", marker, ErrDeviceProtocol, err)
		}
		seen.WriteByte(b)
		s.outBuf.WriteByte(b)
		if strings.HasSuffix(seen.String(), marker) {
			return nil
		}
	}
}

func (s *processSession) Wait() (string, error) {
	rest, _ := io.ReadAll(s.stdout)
	s.outBuf.Write(rest)
	err := s.cmd.Wait()
	out := s.outBuf.String()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return out, fmt.Errorf("session wait: %w: %v", ErrDeviceProtocol, err)
		}
	}
	idx := strings.LastIndex(out, ":")
	if idx < 0 {
		return "", fmt.Errorf("session wait: %w: missing status suffix in output %q", ErrDeviceProtocol, out)
	}
	body, statusStr := out[:idx], out[idx+1:]
	status, err := strconv.Atoi(strings.TrimSpace(statusStr))
	if err != nil {
		return "", fmt.Errorf("session wait: %w: bad status suffix %q", ErrDeviceProtocol, statusStr)
	}
	if status != 0 {
		return "", fmt.Errorf("session wait: %w: exit status %d: %s", ErrDeviceProtocol, status, body)
	}
	return body, nil
}

// Forwarder opens a TCP forward from the host's port to the same port
// on the device, returning a release function. A failure to release
// is logged, not fatal: it is a benign condition.
type Forwarder interface {
	OpenForward(ctx context.Context, port int) (release func() error, err error)
}

// Forward is a scoped handle on an open port forward; Close must run
// on every exit path, including a panic recovery in the caller, which
// is why it never itself panics.
type Forward struct {
	Port    int
	release func() error
	closed  bool
}

// Close tears down the forward. A teardown failure is logged and
// swallowed rather than surfaced as an install error: it is benign.
func (f *Forward) Close() {
	if f == nil || f.closed {
		return
	}
	f.closed = true
	if f.release == nil {
		return
	}
	if err := f.release(); err != nil {
		Warn("release forward on port %d: %v", f.Port, err)
	}
}

// AgentChannel drives the authenticated file-transfer handshake
// against a device whose shell commands are issued through Device and
// whose TCP forwards are opened through Forwarder.
type AgentChannel struct {
	Device            Device
	Forwarder         Forwarder
	AgentPath         string
	PortCounter       *atomic.Int64
	TextSecretKeySize int

	// DialTimeout bounds the host's connect to the forwarded port; the
	// zero value means no timeout beyond ctx's own deadline.
	DialTimeout time.Duration
}

// readyMarker is the literal substring the agent writes to stdout once
// it is ready to read the secret key back over the TCP side-channel;
// observing it avoids a race where the host writes before the agent
// is listening.
const readyMarker = "z1"

// OpenForward reserves the next port from the shared, process-wide
// counter and forwards it through c.Forwarder.
func (c *AgentChannel) OpenForward(ctx context.Context) (*Forward, error) {
	port := int(c.PortCounter.Add(1))
	release, err := c.Forwarder.OpenForward(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("open forward on port %d: %w", port, err)
	}
	return &Forward{Port: port, release: release}, nil
}

// InstallFile pushes the contents of localSource to devicePath on the
// device, following the key-prefixed handshake the agent protocol uses.
func (c *AgentChannel) InstallFile(ctx context.Context, devicePath, localSource string) error {
	f, err := os.Open(localSource)
	if err != nil {
		return fmt.Errorf("installFile %s: %w: %v", devicePath, ErrPrecondition, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("installFile %s: %w: %v", devicePath, ErrPrecondition, err)
	}
	size := fi.Size()

	fwd, err := c.OpenForward(ctx)
	if err != nil {
		return fmt.Errorf("installFile %s: %w", devicePath, err)
	}
	defer fwd.Close()

	cmd := fmt.Sprintf("umask 022 && %s receive-file %d %d %s",
		c.AgentPath, fwd.Port, size, shellQuote(devicePath)) + exitStatusSuffix
	session, err := c.Device.StartSession(ctx, cmd)
	if err != nil {
		return fmt.Errorf("installFile %s: %w", devicePath, err)
	}

	key, err := session.ReadN(c.TextSecretKeySize)
	if err != nil {
		shellErr := drainShellError(session)
		return transferError(fmt.Errorf("installFile %s: %w: reading secret key: %v", devicePath, ErrDeviceProtocol, err), shellErr)
	}

	if err := session.ReadUntil(readyMarker); err != nil {
		shellErr := drainShellError(session)
		return transferError(fmt.Errorf("installFile %s: %w: waiting for ready marker: %v", devicePath, ErrDeviceProtocol, err), shellErr)
	}

	transferErr := c.transfer(ctx, fwd.Port, key, f, size)

	shellErr := drainShellError(session)
	if transferErr != nil {
		return transferError(fmt.Errorf("installFile %s: %w: %v", devicePath, ErrDeviceProtocol, transferErr), shellErr)
	}
	if shellErr != nil {
		return fmt.Errorf("installFile %s: %w", devicePath, shellErr)
	}

	_, err = ExecuteChecked(ctx, c.Device, fmt.Sprintf("chmod 644 %s", shellQuote(devicePath)))
	if err != nil {
		return fmt.Errorf("installFile %s: chmod: %w", devicePath, err)
	}
	return nil
}

// transfer dials the forwarded port, echoes back the secret key, and
// streams size bytes of content from r.
func (c *AgentChannel) transfer(ctx context.Context, port int, key []byte, r io.Reader, size int64) error {
	dialer := net.Dialer{Timeout: c.DialTimeout}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %v", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(key); err != nil {
		return fmt.Errorf("write secret key: %v", err)
	}
	n, err := io.CopyN(conn, r, size)
	if err != nil {
		return fmt.Errorf("stream file content (%d/%d bytes): %v", n, size, err)
	}
	return nil
}

// drainShellError waits for the session's shell command to finish and
// returns any error it produced, without blocking forever: by the time
// this is called the TCP transfer has already finished or failed, so
// the shell side should complete promptly.
func drainShellError(session ShellSession) error {
	_, err := session.Wait()
	return err
}
