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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/exoinstall"
)

var (
	serialsFlag     string
	packageFlag     string
	apkFlag         string
	processFlag     string
	adbPathFlag     string
	textKeySizeFlag int
)

func init() {
	flag.StringVar(&serialsFlag, "serials", "", "comma-separated device serials to install on")
	flag.StringVar(&packageFlag, "package", "", "package name to synchronize")
	flag.StringVar(&apkFlag, "apk", "", "path to the locally-built main apk")
	flag.StringVar(&processFlag, "process", "", "process name to kill instead of a full force-stop")
	flag.StringVar(&adbPathFlag, "adb", "", "path to the adb binary (default: $PATH)")
	flag.IntVar(&textKeySizeFlag, "agent-key-size", 16, "the agent's TEXT_SECRET_KEY_SIZE")
}

// run drives one Installer.Install call across every named device with
// an empty Manifest (no dex, native or resources block, so only the
// main apk is checked and the app stopped), and returns the process
// exit status: 0 if every device succeeded, 1 otherwise, and 2 when a
// required flag is missing. It contains no business
// logic of its own — device discovery, flag parsing and build-graph
// integration are all out of scope for the installer core; this
// wrapper exists only to exercise it.
func run() int {
	flag.Parse()
	if packageFlag == "" || apkFlag == "" || serialsFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: exoinstall -serials=<s1,s2> -package=<pkg> -apk=<path> [-process=<name>]")
		return 2
	}

	installer := exoinstall.NewInstaller()
	var devices []exoinstall.Device
	for _, serial := range strings.Split(serialsFlag, ",") {
		devices = append(devices, exoinstall.NewAdbDevice(adbPathFlag, serial, installer.PortCounter, textKeySizeFlag))
	}

	result, err := installer.Install(context.Background(), packageFlag, &exoinstall.Manifest{}, apkFlag, processFlag, devices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "install: %v\n", err)
		return 1
	}

	for _, dr := range result.Devices {
		if dr.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: FAILED: %v\n", dr.Device.Serial(), dr.Err)
			continue
		}
		fmt.Printf("%s: OK (reinstalled=%v, pushed=%d, deleted=%d)\n",
			dr.Device.Serial(), dr.Result.Reinstalled, len(dr.Result.Pushed), len(dr.Result.Deleted))
	}

	if result.Success() {
		return 0
	}
	return 1
}

func main() {
	os.Exit(run())
}
