package ledger

import "errors"

var (
	// ErrInsufficientFunds means the stake exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidInstrument means the symbol is not traded by the price source.
	ErrInvalidInstrument = errors.New("invalid instrument")
	// ErrPositionNotFound means no open position has the requested id.
	ErrPositionNotFound = errors.New("position not found")
	// ErrInvalidStake means the stake is below the minimum or off the stake grid.
	ErrInvalidStake = errors.New("invalid stake")
	// ErrSessionEnded means the ledger was settled and accepts no new positions.
	ErrSessionEnded = errors.New("session ended")
)
