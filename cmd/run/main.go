// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/zintix-labs/dicebot/sdk/perf"
)

// main routes os.Args[1] to one of the logical commands of spec §6
// (simulate, compare, analyze, recovery), the way scripts/ops.go's
// selectTask switches on os.Args[1] before binding any flags.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dicebot [simulate|compare|analyze|recovery] [flags]")
		os.Exit(1)
	}

	cmd := os.Args[1]
	bindVar(cmd, os.Args[2:])
	perf.RunPProf(func() { dispatch(cmd) }, cfg.pprofMode)
}
