package service

import "errors"

// Expected business conditions are sentinel errors matched with
// errors.Is; handlers map them to client-error responses. Anything else
// is an unexpected I/O failure and surfaces as a generic internal error.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrHoldNotActive     = errors.New("hold not active")
	ErrHoldExpired       = errors.New("hold has expired")
	ErrPledgeNotFound    = errors.New("pledge not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
	// ErrBankRejected covers bank client-error responses that do not map
	// onto a more specific sentinel.
	ErrBankRejected = errors.New("bank rejected request")
)

// IsBusinessErr reports whether err is an expected business condition
// rather than an internal failure.
func IsBusinessErr(err error) bool {
	for _, e := range []error{
		ErrAccountNotFound, ErrAccountInactive, ErrInsufficientFunds,
		ErrHoldNotFound, ErrHoldNotActive, ErrHoldExpired,
		ErrPledgeNotFound, ErrInvalidAmount, ErrBankRejected,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
