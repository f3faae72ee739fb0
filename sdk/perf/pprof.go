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

// Package perf wraps a run in runtime/pprof profiling, the way the
// teacher's cmd/run wraps a simulation run: a simulate/compare/analyze/
// recovery invocation of this module's own cmd/run is itself "the function
// to profile" here, not a slot spin.
package perf

import (
	"os"
	"runtime"
	"runtime/pprof"
)

const pprofDir = "build/profiling"

// RunPProf runs exe, optionally wrapped in one of the profiling modes
// below, chosen by mode (empty runs exe unwrapped).
//
// Usage:
//
//	go run ./cmd/run simulate -p cpu
func RunPProf(exe func(), mode string) {
	_ = os.MkdirAll(pprofDir, 0o755)

	switch mode {
	case "":
		exe()
	case "cpu":
		PProfCPU(exe)
	case "heap":
		PProfHeap(exe)
	case "allocs":
		PProfAllocs(exe)
	default:
		exe()
	}
}

// PProfCPU profiles exe's CPU usage for its entire duration and writes
// build/profiling/cpu.pprof.
func PProfCPU(exe func()) {
	_ = os.MkdirAll(pprofDir, 0o755)

	filePath := pprofDir + "/cpu.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create cpu.pprof: " + err.Error())
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		panic("failed to start pprof: " + err.Error())
	}
	defer pprof.StopCPUProfile()

	exe()
}

// PProfHeap runs exe, then writes one in-use-memory heap snapshot to
// build/profiling/heap.pprof. A runtime.GC() call right before the
// snapshot keeps the reported live-object set close to reality.
func PProfHeap(exe func()) {
	exe()

	_ = os.MkdirAll(pprofDir, 0o755)
	runtime.GC()

	filePath := pprofDir + "/heap.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create heap.pprof: " + err.Error())
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		panic("failed to write heap profile: " + err.Error())
	}
}

// PProfAllocs runs exe, then writes a cumulative allocation profile to
// build/profiling/allocs.pprof (inspect with -alloc_space/-alloc_objects).
func PProfAllocs(exe func()) {
	exe()

	_ = os.MkdirAll(pprofDir, 0o755)

	filePath := pprofDir + "/allocs.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create allocs.pprof: " + err.Error())
	}
	defer f.Close()

	if prof := pprof.Lookup("allocs"); prof != nil {
		if err := prof.WriteTo(f, 0); err != nil {
			panic("failed to write allocs profile: " + err.Error())
		}
	}
}
