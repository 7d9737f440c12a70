package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// CoinSpec describes one tracked coin: CoinGecko id, human-readable name
// and the fiat currency to quote it in.
type CoinSpec struct {
	ID       string
	Name     string
	Currency string
}

// CoinList is parsed from a comma-separated env value of
// "id:Display Name:currency" triples.
type CoinList []CoinSpec

// Decode implements envconfig.Decoder.
func (cl *CoinList) Decode(value string) error {
	var coins CoinList
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("coin entry %q: expected id:name:currency", entry)
		}
		spec := CoinSpec{
			ID:       strings.TrimSpace(parts[0]),
			Name:     strings.TrimSpace(parts[1]),
			Currency: strings.ToLower(strings.TrimSpace(parts[2])),
		}
		if spec.ID == "" || spec.Name == "" || spec.Currency == "" {
			return fmt.Errorf("coin entry %q: empty field", entry)
		}
		coins = append(coins, spec)
	}
	if len(coins) == 0 {
		return fmt.Errorf("coin list %q: no coins", value)
	}
	*cl = coins
	return nil
}

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken         string          `envconfig:"BOT_TOKEN" required:"true"`
	DBPath           string          `envconfig:"DB_PATH" default:"./data/tracker.db"`
	APIURL           string          `envconfig:"COINGECKO_API_URL" default:"https://api.coingecko.com/api/v3/simple/price"`
	APIKey           string          `envconfig:"COINGECKO_API_KEY"` // optional, raises rate limits
	PollIntervalSec  int             `envconfig:"POLL_INTERVAL_SEC" default:"360"`
	DefaultThreshold decimal.Decimal `envconfig:"DEFAULT_THRESHOLD_PERCENT" default:"5"`
	Coins            CoinList        `envconfig:"COINS" default:"fpi-bank:FPI Bank:rub"`
	AdminChatID      int64           `envconfig:"ADMIN_CHAT_ID"`
	LogLevel         string          `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr         string          `envconfig:"HTTP_ADDR" default:":8080"`
}

// Load reads environment variables into Config and validates the values
// the poller depends on.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.PollIntervalSec < 10 {
		return cfg, fmt.Errorf("POLL_INTERVAL_SEC %d: minimum is 10", cfg.PollIntervalSec)
	}
	if !cfg.DefaultThreshold.IsPositive() {
		return cfg, fmt.Errorf("DEFAULT_THRESHOLD_PERCENT %s: must be positive", cfg.DefaultThreshold)
	}
	return cfg, nil
}
