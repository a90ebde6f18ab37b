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
	"sort"
	"sync"
	"time"
)

// EventListener receives the two install-lifecycle events named in
// Either method may be nil-safe no-ops (NopListener below).
type EventListener interface {
	InstallStarted(target string)
	InstallFinished(target string, success bool, packageName string)
}

// NopListener discards every event; the zero value is ready to use.
type NopListener struct{}

func (NopListener) InstallStarted(string)               {}
func (NopListener) InstallFinished(string, bool, string) {}

// spanStats accumulates scoped performance events the way the
// teacher's statsT did: one counter bucket per named span, recording
// count, total and longest duration. Used around package-info query,
// signature check, per-class multi-install, per-file install and
// app-kill
type spanStats struct {
	mu   sync.Mutex
	data map[string]spanData
}

type spanData struct {
	Name    string
	Count   int
	Total   time.Duration
	Longest time.Duration
}

func newSpanStats() *spanStats {
	return &spanStats{data: make(map[string]spanData)}
}

// span starts a named scoped performance event and returns a function
// that ends it; call the returned function via defer at the call site:
//
//	defer stats.span("signature-check")()
func (s *spanStats) span(name string) func() {
	t0 := time.Now()
	return func() {
		d := time.Since(t0)
		s.mu.Lock()
		defer s.mu.Unlock()
		sd := s.data[name]
		sd.Name = name
		sd.Count++
		sd.Total += d
		if d > sd.Longest {
			sd.Longest = d
		}
		s.data[name] = sd
	}
}

// snapshot returns the accumulated spans sorted by total time
// descending, for diagnostic dumping.
func (s *spanStats) snapshot() []spanData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]spanData, 0, len(s.data))
	for _, v := range s.data {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}
