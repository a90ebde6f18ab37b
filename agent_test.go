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
	"io"
	"net"
	"sync/atomic"
	"testing"
)

// fakeForwarder opens a real loopback listener standing in for the
// device's forwarded port, so AgentChannel.transfer's net.Dial has
// something real to connect to. ready is closed once the listener
// exists, so the test's accept goroutine never touches ln until the
// write that created it has happened-before.
type fakeForwarder struct {
	ln    net.Listener
	ready chan struct{}
}

func newFakeForwarder() *fakeForwarder {
	return &fakeForwarder{ready: make(chan struct{})}
}

func (f *fakeForwarder) OpenForward(ctx context.Context, port int) (func() error, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	f.ln = ln
	close(f.ready)
	return ln.Close, nil
}

// fakeShellSession simulates the agent's "receive-file" companion
// process: it hands back a canned secret key, a ready marker, then
// blocks on Wait until the test's goroutine has read the transferred
// bytes off the forwarded listener and signals completion.
type fakeShellSession struct {
	key      []byte
	waitErr  error
	waitDone chan struct{}
}

func (s *fakeShellSession) ReadN(n int) ([]byte, error) {
	return s.key[:n], nil
}

func (s *fakeShellSession) ReadUntil(marker string) error {
	return nil
}

func (s *fakeShellSession) Wait() (string, error) {
	<-s.waitDone
	return "", s.waitErr
}

type sessionDevice struct {
	*fakeDevice
	session *fakeShellSession
}

func (d *sessionDevice) StartSession(ctx context.Context, command string) (ShellSession, error) {
	d.record(command)
	return d.session, nil
}

func TestAgentChannelInstallFileHandshake(t *testing.T) {
	dir := t.TempDir()
	localSource, err := writeLocalApk(dir, "payload.dat", "hello exoinstall")
	if err != nil {
		t.Fatalf("writeLocalApk: %v", err)
	}

	fwd := newFakeForwarder()
	session := &fakeShellSession{key: []byte("0123456789abcdef"), waitDone: make(chan struct{})}
	dev := &sessionDevice{fakeDevice: newFakeDevice("device-1"), session: session}

	counter := &atomic.Int64{}
	counter.Store(initialAgentPort - 1)
	ch := &AgentChannel{
		Device:            dev,
		Forwarder:         fwd,
		AgentPath:         "app_process /data/app/agent.apk AgentMain",
		PortCounter:       counter,
		TextSecretKeySize: len(session.key),
	}

	accepted := make(chan []byte, 1)
	go func() {
		<-fwd.ready
		conn, err := fwd.ln.Accept()
		if err != nil {
			close(session.waitDone)
			return
		}
		defer conn.Close()
		keyBuf := make([]byte, len(session.key))
		io.ReadFull(conn, keyBuf)
		body, _ := io.ReadAll(conn)
		accepted <- body
		close(session.waitDone)
	}()

	if err := ch.InstallFile(context.Background(), "secondary-dex/payload.dat", localSource); err != nil {
		t.Fatalf("InstallFile: %v", err)
	}

	select {
	case got := <-accepted:
		if string(got) != "hello exoinstall" {
			t.Fatalf("got transferred content %q, want %q", got, "hello exoinstall")
		}
	default:
		t.Fatal("expected the forwarded listener to have accepted a connection")
	}

	foundChmod := false
	for _, c := range dev.commands {
		if c == "chmod 644 'secondary-dex/payload.dat'; echo -n :$?" {
			foundChmod = true
		}
	}
	if !foundChmod {
		t.Fatalf("expected a chmod command after transfer, got %v", dev.commands)
	}
}
