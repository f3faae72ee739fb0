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

package runner

// Health is a pull-style snapshot of a Runner's accumulated fault counts,
// modeled on runtime.go's RuntimeHealth (supplemented feature: the spec
// doesn't ask for it, but the worker-pool/cancellation model it does ask
// for needs the same observability the teacher built for its own pool).
type Health struct {
	Panics int64
	Fatals int64
	OK     bool
}

// Health reports the Runner's accumulated panic/fatal counts since
// construction. Unlike runtime.go's TTL-cached snapshot, a Runner is
// single-plan and short-lived, so there is no refresh cadence to cache.
func (r *Runner) Health() Health {
	panics := r.panics.Load()
	fatals := r.fatals.Load()
	return Health{Panics: panics, Fatals: fatals, OK: panics == 0 && fatals == 0}
}
