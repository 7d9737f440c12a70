package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUserBlocked marks a delivery failure caused by the user blocking the
// bot. The poller deactivates such users instead of retrying.
var ErrUserBlocked = errors.New("user blocked the bot")

// Action is the outcome of evaluating a price against a user's baseline.
type Action int

const (
	// ActionInitialize stores the current price as the baseline without
	// sending anything. Returned when no baseline exists yet.
	ActionInitialize Action = iota
	// ActionNoOp means the move stayed below the user's threshold.
	ActionNoOp
	// ActionNotify means the user should be alerted and the baseline advanced.
	ActionNotify
)

// Evaluation is the decision for one user/coin pair in one cycle.
type Evaluation struct {
	Action       Action
	DeltaPercent decimal.Decimal // signed change vs. baseline
	Rising       bool
}

var hundred = decimal.NewFromInt(100)

// Evaluate decides whether a price move warrants a notification.
//
// A nil or zero baseline yields ActionInitialize: the first observed price
// becomes the reference point and no alert is sent. Otherwise the signed
// percentage delta against the baseline is compared to the threshold; a
// delta exactly equal to the threshold triggers a notification.
func Evaluate(last *decimal.Decimal, current, thresholdPercent decimal.Decimal) Evaluation {
	if last == nil || last.IsZero() {
		return Evaluation{Action: ActionInitialize}
	}
	delta := current.Sub(*last).Div(*last).Mul(hundred)
	if delta.Abs().LessThan(thresholdPercent) {
		return Evaluation{Action: ActionNoOp, DeltaPercent: delta}
	}
	return Evaluation{
		Action:       ActionNotify,
		DeltaPercent: delta,
		Rising:       delta.Sign() >= 0,
	}
}
