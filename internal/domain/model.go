package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coin is a tracked cryptocurrency/currency pair. CurrentPrice and
// PriceUpdatedAt are nil until the first successful fetch; a failed fetch
// leaves the previous values untouched.
type Coin struct {
	ID             string // CoinGecko id, e.g. "fpi-bank"
	Name           string
	Currency       string // fiat quote currency, lowercase, e.g. "rub"
	CurrentPrice   *decimal.Decimal
	PriceUpdatedAt *time.Time
}

// UserSetting is one user's tracking settings for one coin.
// LastNotifiedPrice is nil until the first evaluation stores a baseline.
type UserSetting struct {
	ChatID            int64
	CoinID            string
	OwnedAmount       decimal.Decimal
	InvestedAmount    decimal.Decimal
	ThresholdPercent  decimal.Decimal
	LastNotifiedPrice *decimal.Decimal
	Active            bool
	CreatedAt         time.Time
}
