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

import "sync/atomic"

const mask63 = uint64(1<<63) - 1

// seedMaker derives a unique per-session seed from one top-level plan
// seed, lifted verbatim from sim.go's full-period LCG + mix63 bit-mixer:
// state walks every value in [0, 2^63) exactly once before repeating, and
// CAS makes concurrent next() calls from the parallel worker pool safe.
type seedMaker struct {
	state atomic.Uint64
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()
		next := (old*6364136223846793005 + 1442695040888963407) & mask63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next))
		}
	}
}

// mix63 scrambles a full-period LCG's state with invertible bit operations
// and odd multiplications (mod 2^63), so adjacent LCG states don't produce
// adjacent-looking seeds.
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
