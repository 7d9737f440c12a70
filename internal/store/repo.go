package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
)

// ErrNotFound is returned when a coin or setting row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a settings update; the stored value is unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SettingDefaults seeds a user setting created on first interaction.
type SettingDefaults struct {
	ThresholdPercent decimal.Decimal
}

// SettingPatch carries the optional fields of a settings update; nil fields
// keep their stored value.
type SettingPatch struct {
	OwnedAmount      *decimal.Decimal
	InvestedAmount   *decimal.Decimal
	ThresholdPercent *decimal.Decimal
}

// Validate enforces the field invariants before anything is persisted.
func (p SettingPatch) Validate() error {
	if p.OwnedAmount != nil && p.OwnedAmount.IsNegative() {
		return &ValidationError{Field: "owned_amount", Reason: "must not be negative"}
	}
	if p.InvestedAmount != nil && p.InvestedAmount.IsNegative() {
		return &ValidationError{Field: "invested_amount", Reason: "must not be negative"}
	}
	if p.ThresholdPercent != nil && !p.ThresholdPercent.IsPositive() {
		return &ValidationError{Field: "threshold_percent", Reason: "must be positive"}
	}
	return nil
}

// Repo defines storage operations for tracked coins and user settings.
type Repo interface {
	// Coins
	UpsertCoin(ctx context.Context, c domain.Coin) error
	GetCoin(ctx context.Context, coinID string) (*domain.Coin, error)
	ListCoins(ctx context.Context) ([]domain.Coin, error)
	SetCoinPrice(ctx context.Context, coinID string, price decimal.Decimal, at time.Time) error

	// User settings
	GetOrCreateSetting(ctx context.Context, chatID int64, coinID string, defaults SettingDefaults) (*domain.UserSetting, error)
	UpdateSetting(ctx context.Context, chatID int64, coinID string, patch SettingPatch) (*domain.UserSetting, error)
	SetLastNotified(ctx context.Context, chatID int64, coinID string, price decimal.Decimal) error
	SetActive(ctx context.Context, chatID int64, coinID string, active bool) error
	ListActiveByCoin(ctx context.Context, coinID string) ([]domain.UserSetting, error)
	DeleteSetting(ctx context.Context, chatID int64, coinID string) error
	CountUsers(ctx context.Context) (int, error)

	Close() error
}
