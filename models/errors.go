package models

import "errors"

var (
	// ErrInvalidParameter marks input the core refuses to compute with.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInsufficientData marks input that is well formed but too thin to
	// produce a result (short price history, empty chain, missing HV).
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUpstreamUnavailable wraps every failure of the market data provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
