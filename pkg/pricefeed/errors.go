package pricefeed

import "errors"

// Provider failures collapse onto three classes. Callers degrade on any of
// them (serve stale data or omit the symbol) rather than propagate.
var (
	// ErrUnavailable covers transport failures and non-2xx responses.
	ErrUnavailable = errors.New("pricefeed: provider unavailable")
	// ErrAuth covers missing or rejected credentials.
	ErrAuth = errors.New("pricefeed: provider credentials missing or rejected")
	// ErrParse covers responses that do not match the expected schema.
	ErrParse = errors.New("pricefeed: unexpected provider payload")
)
