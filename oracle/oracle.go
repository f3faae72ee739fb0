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

// Package oracle implements the Bitsler-style provably-fair dice oracle:
// deterministic roll derivation from (server_seed, client_seed, nonce) via
// HMAC-SHA512, seed rotation, and external verification. An Oracle is not
// thread-safe and is owned by exactly one engine (spec §4.2); parallel
// simulation workers each get their own Oracle and their own RNG for
// rotation (spec §9), never a process-global source.
package oracle

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/zintix-labs/dicebot/errs"
)

// BetType is which side of the threshold a bet wagers on.
type BetType uint8

const (
	Under BetType = iota
	Over
)

func (b BetType) String() string {
	if b == Over {
		return "OVER"
	}
	return "UNDER"
}

// windowHex is the width of each hex window walked over the HMAC digest.
const windowHex = 5

// maxWindowValue is the inclusive ceiling a window must not exceed to
// qualify (spec §4.2 step 3).
const maxWindowValue = 999_999

// SeedTriple is the (server_seed, client_seed, nonce) tuple that
// deterministically produces one roll. server_seed is kept opaque
// (raw bytes as supplied/generated); it is never assumed to be printable.
type SeedTriple struct {
	ServerSeed []byte
	ClientSeed string
	Nonce      uint64
}

// Oracle owns one live seed epoch and the RNG used to mint fresh server
// seeds on rotation.
type Oracle struct {
	rng io.Reader // crypto RNG, per-Oracle (spec §9); defaults to crypto/rand.Reader

	serverSeed []byte
	clientSeed string
	nonce      uint64
}

// New creates an Oracle seeded with an initial server/client seed pair.
// serverSeed may be nil, in which case a fresh one is generated from rng
// (or crypto/rand.Reader if rng is nil).
func New(serverSeed []byte, clientSeed string, rng io.Reader) (*Oracle, error) {
	if rng == nil {
		rng = rand.Reader
	}
	o := &Oracle{rng: rng, clientSeed: clientSeed}
	if len(serverSeed) == 0 {
		fresh, err := freshServerSeed(rng)
		if err != nil {
			return nil, err
		}
		serverSeed = fresh
	}
	o.serverSeed = append([]byte(nil), serverSeed...)
	return o, nil
}

func freshServerSeed(rng io.Reader) ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return nil, errs.Wrap(err, "oracle: failed to generate server seed")
	}
	return buf, nil
}

// SetClientSeed mutates the current epoch's client seed. Does not reset
// the nonce (spec §3).
func (o *Oracle) SetClientSeed(s string) {
	o.clientSeed = s
}

// RevealedSeed is the previous epoch's server seed, disclosed on rotation.
type RevealedSeed struct {
	ServerSeed []byte
	ClientSeed string
	FinalNonce uint64
}

// RotateSeeds generates a new random server seed, returns the previous
// (now revealed) triple, and resets the nonce to 0. A new epoch begins.
func (o *Oracle) RotateSeeds() (RevealedSeed, error) {
	prev := RevealedSeed{
		ServerSeed: o.serverSeed,
		ClientSeed: o.clientSeed,
		FinalNonce: o.nonce,
	}
	fresh, err := freshServerSeed(o.rng)
	if err != nil {
		return RevealedSeed{}, err
	}
	o.serverSeed = fresh
	o.nonce = 0
	return prev, nil
}

// CurrentInfo is what a bettor is shown before wagering: the server seed's
// commitment hash, the live client seed, and the next nonce to be consumed.
type CurrentInfo struct {
	ServerSeedHash string // hex SHA-256(server_seed)
	ClientSeed     string
	Nonce          uint64
}

// GetCurrentInfo returns the current epoch's public commitment.
func (o *Oracle) GetCurrentInfo() CurrentInfo {
	sum := sha256.Sum256(o.serverSeed)
	return CurrentInfo{
		ServerSeedHash: hex.EncodeToString(sum[:]),
		ClientSeed:     o.clientSeed,
		Nonce:          o.nonce,
	}
}

// Roll is the byte-exact result of deriving a roll from a seed triple
// (spec §4.2). Step 4's formatted value is represented as Hundredths so
// equality comparisons never touch a float.
type Roll struct {
	Hundredths int // roll * 100, in [0, 9999]
	Window     int // the qualifying 5-hex-char window value, for diagnostics
	HMAC       string
}

// Float64 renders the roll as the spec's documented decimal (e.g. 42.17).
// Only used for display and for the one documented float comparison in
// Threshold/Won; never for ledger arithmetic.
func (r Roll) Float64() float64 {
	return float64(r.Hundredths) / 100.0
}

func (r Roll) String() string {
	return fmt.Sprintf("%d.%02d", r.Hundredths/100, r.Hundredths%100)
}

// Derive computes the deterministic roll for (serverSeed, clientSeed, nonce)
// per spec §4.2. It is a pure function of its inputs so it can be used both
// for producing a live roll and for Verify's recomputation.
func Derive(serverSeed []byte, clientSeed string, nonce uint64) (Roll, error) {
	message := clientSeed + "," + strconv.FormatUint(nonce, 10)
	mac := hmac.New(sha512.New, serverSeed)
	mac.Write([]byte(message))
	sum := mac.Sum(nil)
	h := hex.EncodeToString(sum) // 128 lowercase hex chars

	for offset := 0; offset+windowHex <= len(h); offset += windowHex {
		window := h[offset : offset+windowHex]
		n, err := strconv.ParseInt(window, 16, 64)
		if err != nil {
			return Roll{}, errs.Wrap(err, "oracle: malformed hex window")
		}
		if n <= maxWindowValue {
			return Roll{
				Hundredths: int(n % 10_000),
				Window:     int(n),
				HMAC:       h,
			}, nil
		}
	}
	return Roll{}, errs.OracleExhausted("oracle: no qualifying window in HMAC digest")
}

// RollNext derives the roll for the current epoch's next nonce and
// advances the nonce by one (it is consumed). Callers that only want to
// toggle bet type or peek must not call RollNext.
func (o *Oracle) RollNext() (Roll, SeedTriple, error) {
	triple := SeedTriple{ServerSeed: o.serverSeed, ClientSeed: o.clientSeed, Nonce: o.nonce}
	roll, err := Derive(o.serverSeed, o.clientSeed, o.nonce)
	if err != nil {
		return Roll{}, triple, err
	}
	o.nonce++
	return roll, triple, nil
}

// Nonce returns the next nonce to be consumed (not yet advanced).
func (o *Oracle) Nonce() uint64 { return o.nonce }

// Snapshot captures the live epoch's seed triple, for checkpointing a
// session between runs (spec §4.8). The returned ServerSeed is a copy.
func (o *Oracle) Snapshot() SeedTriple {
	return SeedTriple{
		ServerSeed: append([]byte(nil), o.serverSeed...),
		ClientSeed: o.clientSeed,
		Nonce:      o.nonce,
	}
}

// Restore replaces the live epoch with a previously snapshotted triple,
// e.g. when resuming a session from a checkpoint.
func (o *Oracle) Restore(t SeedTriple) {
	o.serverSeed = append([]byte(nil), t.ServerSeed...)
	o.clientSeed = t.ClientSeed
	o.nonce = t.Nonce
}

// VerifyResult is the outcome of externally auditing a past roll.
type VerifyResult struct {
	Valid    bool
	Expected Roll
	Computed Roll
	HMAC     string
}

// Verify recomputes the roll from a revealed server seed and compares it
// against an expected roll using exact decimal equality — the stricter
// choice spec §9(c) calls out over the source's 0.01-tolerance comparison.
func Verify(serverSeed []byte, clientSeed string, nonce uint64, expected Roll) (VerifyResult, error) {
	computed, err := Derive(serverSeed, clientSeed, nonce)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Valid:    computed.Hundredths == expected.Hundredths,
		Expected: expected,
		Computed: computed,
		HMAC:     computed.HMAC,
	}, nil
}
