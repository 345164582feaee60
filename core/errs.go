package core

import "errors"

var (
	ErrInvalidTimeframe  = errors.New("invalid timeframe")
	ErrUnknownStrategy   = errors.New("unknown strategy class")
	ErrMissingParameter  = errors.New("missing required parameter")
	ErrNoData            = errors.New("no candle data available")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientFunds = errors.New("insufficient buying power")
)
