package model

import "errors"

// ErrMalformedInput is returned when a client-supplied identifier or code
// does not have the expected shape.  It is raised before any store access.
var ErrMalformedInput = errors.New("malformed input")

// ErrAlreadyRedeemed is returned when the redemption policy refuses a
// ticket that was already used in the current window.
var ErrAlreadyRedeemed = errors.New("ticket already redeemed")
