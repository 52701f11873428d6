package domain

import "errors"

var (
	ErrZeroMint         = errors.New("domain: mint is zero")
	ErrZeroAccount      = errors.New("domain: account entry is zero")
	ErrInvalidPriceHint = errors.New("domain: price hint is not finite or negative")
)
