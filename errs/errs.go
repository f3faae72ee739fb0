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

package errs

import (
	"errors"
	"fmt"
)

// ErrLevel : Error 分級，使最上層理解問題嚴重程度
type ErrLevel uint8

const (
	None ErrLevel = iota
	Fatal
	Warn
	Log
)

var errLvMap = map[ErrLevel]string{
	None:  "",
	Fatal: "fatal",
	Warn:  "warn",
	Log:   "log",
}

func ErrLv(errlv ErrLevel) string {
	if str, ok := errLvMap[errlv]; ok {
		return str
	}
	return ""
}

// E 是統一的錯誤型別。
// Message 為經過樣板格式化後的主訊息；Extra 為呼叫端可追加的額外上下文；
// Cause 可串接下層錯誤（wrap）；ErrLv 為錯誤等級（Fatal 表示需立即中止）；
// TaxKind 為錯誤分類。
type E struct {
	Message string
	Extra   string
	Cause   error
	ErrLv   ErrLevel
	TaxKind Kind
}

// Error 實作 error 介面並回傳格式化後的錯誤訊息。
func (e *E) Error() string {
	base := fmt.Sprintf("errlv=%s %s", ErrLv(e.ErrLv), e.Message)
	if e.Extra != "" {
		base += " | extra: " + e.Extra
	}
	if e.Cause != nil {
		base += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return base
}

// Unwrap 讓 errors.Is / errors.As 能夠向下展開。
func (e *E) Unwrap() error { return e.Cause }

// New 依錯誤碼與參數建立錯誤
func New(errLv ErrLevel, msg string) *E {
	return &E{Message: msg, ErrLv: errLv}
}

func NewFatal(msg string) *E {
	return &E{Message: msg, ErrLv: Fatal}
}

func NewWarn(msg string) *E {
	return &E{Message: msg, ErrLv: Warn}
}

func NewLog(msg string) *E {
	return &E{Message: msg, ErrLv: Log}
}

func Fatalf(format string, a ...any) *E {
	return NewFatal(fmt.Sprintf(format, a...))
}

func Warnf(format string, a ...any) *E {
	return NewWarn(fmt.Sprintf(format, a...))
}

func Logf(format string, a ...any) *E {
	return NewLog(fmt.Sprintf(format, a...))
}

// NewWithExtra 與 New 相同，但可附加額外上下文字串（不影響主訊息）。
func NewWithExtra(errLv ErrLevel, msg string, extra string) *E {
	e := New(errLv, msg)
	e.Extra = extra
	return e
}

// Wrap 使用給定的錯誤碼與訊息包裝底層錯誤，建立一個 *E。
//
// ErrLevel 規則：
//   - 若 cause 已經是 *E，則沿用其 ErrLv（保持原本嚴重度）。
//   - 若 cause 不是本包定義的 *E（多半是標準庫或三方依賴錯誤），則 ErrLv 一律視為 Fatal。
//
// 建議使用方式：
//   - 若你已判斷該錯誤是「可預期且可處理」的情境，請直接建立一個 *E
//     （使用 New / NewWithExtra 並自行指定 ErrLv），而不要對其呼叫 Wrap。
func Wrap(cause error, msg string) *E {
	var e *E
	errLv := Fatal
	if errors.As(cause, &e) {
		errLv = e.ErrLv
	}
	r := New(errLv, msg)
	r.Cause = cause
	return r
}

// WrapWithExtra 使用給定的錯誤碼與訊息與上下文包裝底層錯誤，建立一個 *E
//
// ErrLevel 規則：
//   - 若 cause 已經是 *E，則沿用其 ErrLv（保持原本嚴重度）。
//   - 若 cause 不是本包定義的 *E（多半是標準庫或三方依賴錯誤），則 ErrLv 一律視為 Fatal。
//
// 建議使用方式：
//   - 若你已判斷該錯誤是「可預期且可處理」的情境，請直接建立一個 *E
//     （使用 New / NewWithExtra 並自行指定 ErrLv），而不要對其呼叫 Wrap。
func WrapWithExtra(cause error, msg string, extra string) *E {
	var e *E
	errLv := Fatal
	if errors.As(cause, &e) {
		errLv = e.ErrLv
	}
	r := NewWithExtra(errLv, msg, extra)
	r.Cause = cause
	return r
}

func AsErr(err error) (*E, bool) {
	var e *E
	if errors.As(err, &e) {
		return e, true
	}
	return e, false
}

// Kind tags an *E with which entry of the session error taxonomy it belongs
// to. The zero value (KindNone) means "no specific kind" (used by errors
// that predate the taxonomy, e.g. ad-hoc validation in nested packages).
type Kind uint8

const (
	KindNone Kind = iota
	KindConfigInvalid
	KindBetInvalid
	KindOracleExhausted
	KindStateCorrupt
	KindSinkIO
	KindCancelled
)

// WithKind tags e with k and returns e, for chaining at the construction site.
func (e *E) WithKind(k Kind) *E {
	e.TaxKind = k
	return e
}

// ConfigInvalid: out-of-range or inconsistent config, surfaced before any
// session runs. Aborts the runner.
func ConfigInvalid(msg string) *E { return NewFatal(msg).WithKind(KindConfigInvalid) }

// BetInvalid: amount below min, above balance, or multiplier out of band.
// Recovered locally by clamping; logged as a warning.
func BetInvalid(msg string) *E { return NewWarn(msg).WithKind(KindBetInvalid) }

// OracleExhausted: the HMAC windowing walk found no qualifying window.
// Fatal for the session (not the runner): SESSION_END(BANKRUPT) with this
// flag set.
func OracleExhausted(msg string) *E { return NewFatal(msg).WithKind(KindOracleExhausted) }

// StateCorrupt: ledger drift or other invariant violation. Fatal for the
// session; the runner checkpoints and aborts.
func StateCorrupt(msg string) *E { return NewFatal(msg).WithKind(KindStateCorrupt) }

// SinkIO: a log or checkpoint write failed. Non-fatal; the caller should
// drop the event and warn once per file.
func SinkIO(msg string) *E { return NewWarn(msg).WithKind(KindSinkIO) }

// Cancelled: cooperative cancellation observed between bets. Benign.
func Cancelled(msg string) *E { return NewLog(msg).WithKind(KindCancelled) }

// IsKind reports whether err is an *E tagged with kind k.
func IsKind(err error, k Kind) bool {
	e, ok := AsErr(err)
	return ok && e.TaxKind == k
}
