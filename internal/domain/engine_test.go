package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestEvaluate_NoBaselineInitializes(t *testing.T) {
	ev := Evaluate(nil, dec("100"), dec("5"))
	require.Equal(t, ActionInitialize, ev.Action)
}

func TestEvaluate_ZeroBaselineInitializes(t *testing.T) {
	// A zero baseline cannot anchor a percentage delta; treat it like a
	// missing one instead of dividing by zero.
	ev := Evaluate(decPtr("0"), dec("100"), dec("5"))
	require.Equal(t, ActionInitialize, ev.Action)
}

func TestEvaluate_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		last      string
		current   string
		threshold string
		action    Action
		delta     string
		rising    bool
	}{
		{"rise above threshold", "100", "106", "5", ActionNotify, "6", true},
		{"small move after advance", "106", "108", "5", ActionNoOp, "", false},
		{"exactly at threshold", "100", "105", "5", ActionNotify, "5", true},
		{"drop at threshold", "100", "95", "5", ActionNotify, "-5", false},
		{"drop below threshold", "100", "90", "5", ActionNotify, "-10", false},
		{"just under threshold", "100", "104.99", "5", ActionNoOp, "", false},
		{"unchanged price", "100", "100", "5", ActionNoOp, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(decPtr(tt.last), dec(tt.current), dec(tt.threshold))
			require.Equal(t, tt.action, ev.Action)
			if tt.action == ActionNotify {
				assert.True(t, ev.DeltaPercent.Equal(dec(tt.delta)),
					"delta = %s, want %s", ev.DeltaPercent, tt.delta)
				assert.Equal(t, tt.rising, ev.Rising)
			}
		})
	}
}

func TestEvaluate_IdempotentAfterAdvance(t *testing.T) {
	// Once the baseline has been advanced to the current price,
	// re-evaluating the same price must be a no-op.
	current := dec("106")
	ev := Evaluate(decPtr("100"), current, dec("5"))
	require.Equal(t, ActionNotify, ev.Action)

	ev = Evaluate(&current, current, dec("5"))
	require.Equal(t, ActionNoOp, ev.Action)
}
