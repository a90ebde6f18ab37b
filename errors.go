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

import "errors"

// Error kinds named in the error-handling design: malformed input,
// device-protocol failure, precondition violation. Benign conditions
// (process-not-found, forward-teardown failure) are not errors at all;
// see KillOutcome.
var (
	// ErrMalformedInput marks a parse failure over device or host
	// output that does not have the shape the protocol promises.
	ErrMalformedInput = errors.New("exoinstall: malformed input")

	// ErrDeviceProtocol marks a failure in the shell or agent
	// handshake: non-zero exit, missing key, socket failure.
	ErrDeviceProtocol = errors.New("exoinstall: device protocol error")

	// ErrPrecondition marks a caller error: non-conforming package
	// name, a non-absolute source or target path.
	ErrPrecondition = errors.New("exoinstall: precondition violated")
)

// KillOutcome is the three-valued result of a targeted process kill,
// replacing a string match on "No such process" in the killed command's
// output with a typed result the caller can switch on.
type KillOutcome int

const (
	// KillOutcomeKilled means the process was found and signaled.
	KillOutcomeKilled KillOutcome = iota
	// KillOutcomeNotRunning means the process was already gone; this
	// is benign and must never be treated as a synchronization failure.
	KillOutcomeNotRunning
	// KillOutcomeError means the kill attempt itself failed for a
	// reason other than "process not running".
	KillOutcomeError
)

func (k KillOutcome) String() string {
	switch k {
	case KillOutcomeKilled:
		return "killed"
	case KillOutcomeNotRunning:
		return "not-running"
	case KillOutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// transferError composes a transport-layer error with a suppressed
// shell-layer cause: when a shell error and a socket error occur for
// the same file push, the socket error is primary and the shell error
// is attached as a suppressed cause for diagnosis, joined with
// errors.Join so both are visible to errors.Is/errors.As without
// either one masking the other.
func transferError(primary, suppressed error) error {
	if suppressed == nil {
		return primary
	}
	if primary == nil {
		return suppressed
	}
	return errors.Join(primary, suppressed)
}
