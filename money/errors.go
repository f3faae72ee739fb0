package money

import "errors"

var ErrDivByZero = errors.New("money: division by zero")
