package farming

import "errors"

var (
	ErrNilSchedule       = errors.New("farming engine: schedule not configured")
	ErrNilCustody        = errors.New("farming engine: token custody not configured")
	ErrInvalidAmount     = errors.New("farming engine: amount must be positive")
	ErrInsufficientStake = errors.New("farming engine: amount exceeds staked balance")
	ErrNoStake           = errors.New("farming engine: no staked balance")
	ErrTransferFailed    = errors.New("farming engine: token transfer rejected")
)
