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
	"strconv"
	"strings"
)

// MaxShellCommandSize is the hard command-length cap the underlying
// remote-shell protocol imposes; exceeding it silently truncates the
// command, so every bulk operation must pre-chunk its arguments.
const MaxShellCommandSize = 1019

// exitStatusSuffix is appended to a shell command when the caller
// needs an explicit, protocol-level exit status rather than relying on
// the transport's own notion of command success.
const exitStatusSuffix = "; echo -n :$?"

// ShellExecutor runs a single shell command on a device and returns its
// combined stdout+stderr. Implementations fail when the device rejects
// the command or times out; they return any exitStatusSuffix output
// unchecked, and ExecuteChecked is what turns a non-zero trailing
// status into an error.
type ShellExecutor interface {
	ShellExecute(ctx context.Context, command string) (string, error)
}

// ExecuteChecked runs command on sh with the "; echo -n :$?" suffix
// convention, verifies the trailing status is 0, and strips the suffix
// before returning the command's own output. This is the form every
// bulk shell operation (RmFiles, MkDirP) uses so a non-zero exit is
// reported as %w-wrapped ErrDeviceProtocol rather than silently
// swallowed in the combined output.
func ExecuteChecked(ctx context.Context, sh ShellExecutor, command string) (string, error) {
	out, err := sh.ShellExecute(ctx, command+exitStatusSuffix)
	if err != nil {
		return "", fmt.Errorf("exec %q: %w: %v", command, ErrDeviceProtocol, err)
	}
	idx := strings.LastIndex(out, ":")
	if idx < 0 {
		return "", fmt.Errorf("exec %q: %w: missing status suffix in output %q", command, ErrDeviceProtocol, out)
	}
	body, statusStr := out[:idx], out[idx+1:]
	status, err := strconv.Atoi(statusStr)
	if err != nil {
		return "", fmt.Errorf("exec %q: %w: bad status suffix %q", command, ErrDeviceProtocol, statusStr)
	}
	if status != 0 {
		return "", fmt.Errorf("exec %q: %w: exit status %d: %s", command, ErrDeviceProtocol, status, body)
	}
	return body, nil
}

// Chunk partitions args into groups whose cumulative character length
// (summed without separators) stays within limit, in xargs style. A
// single token whose own length exceeds limit is placed alone in its
// own chunk rather than being split. Token order is preserved both
// within a chunk and across chunks.
func Chunk(args []string, limit int) [][]string {
	var chunks [][]string
	var cur []string
	curLen := 0
	for _, a := range args {
		if len(a) > limit {
			if len(cur) > 0 {
				chunks = append(chunks, cur)
				cur = nil
				curLen = 0
			}
			chunks = append(chunks, []string{a})
			continue
		}
		if len(cur) > 0 && curLen+len(a) > limit {
			chunks = append(chunks, cur)
			cur = nil
			curLen = 0
		}
		cur = append(cur, a)
		curLen += len(a)
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// rmOverhead is the 100-character safety margin RmFiles reserves on top
// of the length of its "cd <dir> && rm " prefix, which it subtracts
// separately.
const rmOverhead = 100

// RmFiles deletes filenames (device-relative to dir) by running
// "cd <dir> && rm <chunk...>" once per chunk produced at a limit of
// MaxShellCommandSize - overhead, where overhead also accounts for the
// literal "cd "+dir+" && rm " prefix of that particular directory.
// Every chunk is executed with explicit exit-status checking.
func RmFiles(ctx context.Context, sh ShellExecutor, dir string, filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}
	prefix := fmt.Sprintf("cd %s && rm ", shellQuote(dir))
	limit := MaxShellCommandSize - rmOverhead - len(prefix)
	if limit < 1 {
		return fmt.Errorf("rmFiles %s: %w: directory path leaves no room under the command cap", dir, ErrPrecondition)
	}
	for _, chunk := range Chunk(filenames, limit) {
		cmd := prefix + strings.Join(quoteAll(chunk), " ")
		if _, err := ExecuteChecked(ctx, sh, cmd); err != nil {
			return fmt.Errorf("rmFiles %s: %w", dir, err)
		}
	}
	return nil
}

// MkDirP creates path and all of its parents with umask 022. The
// plain shell's mkdir cannot set permissions reliably across the
// devices this core targets, so the call is delegated to the agent's
// mkdir-p verb rather than implemented as a bare "mkdir -p".
func MkDirP(ctx context.Context, sh ShellExecutor, agentPath, path string) error {
	cmd := fmt.Sprintf("umask 022 && %s mkdir-p %s", agentPath, shellQuote(path))
	_, err := ExecuteChecked(ctx, sh, cmd)
	if err != nil {
		return fmt.Errorf("mkDirP %s: %w", path, err)
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quote the POSIX-portable way: close the quote, emit an escaped
// quote, reopen the quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = shellQuote(s)
	}
	return out
}
