package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
)

// Batched fetches for distinct currencies are independent; cap how many
// run at once.
const maxConcurrentFetches = 4

// PriceSource returns current prices for a set of coins quoted in one fiat
// currency. Coins missing from the result simply had no quote.
type PriceSource interface {
	FetchMany(ctx context.Context, currency string, coinIDs []string) (map[string]decimal.Decimal, error)
}

// Notifier delivers one alert message. Implementations signal a blocked
// recipient by wrapping domain.ErrUserBlocked.
type Notifier interface {
	SendAlert(chatID int64, text string) error
}

// Store is the slice of the repository the poller needs.
type Store interface {
	ListCoins(ctx context.Context) ([]domain.Coin, error)
	SetCoinPrice(ctx context.Context, coinID string, price decimal.Decimal, at time.Time) error
	ListActiveByCoin(ctx context.Context, coinID string) ([]domain.UserSetting, error)
	SetLastNotified(ctx context.Context, chatID int64, coinID string, price decimal.Decimal) error
	SetActive(ctx context.Context, chatID int64, coinID string, active bool) error
}

// Poller drives the fetch-evaluate-notify cycle on a fixed interval.
type Poller struct {
	store    Store
	source   PriceSource
	notifier Notifier
	log      *zap.Logger
	interval time.Duration

	// Held for the duration of a cycle; a tick that finds it taken is
	// skipped so cycles never overlap.
	cycleMu sync.Mutex
}

// New creates a Poller.
func New(store Store, source PriceSource, notifier Notifier, log *zap.Logger, interval time.Duration) *Poller {
	return &Poller{
		store:    store,
		source:   source,
		notifier: notifier,
		log:      log,
		interval: interval,
	}
}

// Run executes one cycle immediately, then on every tick until ctx is
// canceled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poller starting", zap.Duration("interval", p.interval))
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one full cycle: refresh every coin's price, then evaluate every
// user of every coin that got a fresh quote. Fetch and delivery failures are
// contained and logged; a store failure aborts the cycle's remaining work
// and the next tick starts over.
func (p *Poller) tick(ctx context.Context) {
	if !p.cycleMu.TryLock() {
		p.log.Warn("previous cycle still running, skipping tick")
		return
	}
	defer p.cycleMu.Unlock()

	coins, err := p.store.ListCoins(ctx)
	if err != nil {
		p.log.Error("list coins failed", zap.Error(err))
		return
	}

	updated, err := p.fetchAll(ctx, coins)
	if err != nil {
		p.log.Error("cycle aborted on store failure", zap.Error(err))
		return
	}
	for _, coin := range updated {
		if ctx.Err() != nil {
			return
		}
		if err := p.evaluateCoin(ctx, coin); err != nil {
			p.log.Error("cycle aborted on store failure",
				zap.String("coin", coin.ID), zap.Error(err))
			return
		}
	}
}

// fetchAll refreshes prices for all coins, one batched request per quote
// currency, and returns the coins whose price was updated this cycle. A
// failed batch or a coin missing from its response leaves the stored price
// untouched; a store write failure is returned to abort the cycle.
func (p *Poller) fetchAll(ctx context.Context, coins []domain.Coin) ([]domain.Coin, error) {
	byCurrency := make(map[string][]domain.Coin)
	for _, coin := range coins {
		byCurrency[coin.Currency] = append(byCurrency[coin.Currency], coin)
	}

	var (
		mu      sync.Mutex
		updated []domain.Coin
	)

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentFetches)
	for currency, group := range byCurrency {
		currency, group := currency, group
		g.Go(func() error {
			ids := make([]string, len(group))
			for i, coin := range group {
				ids[i] = coin.ID
			}

			prices, err := p.source.FetchMany(ctx, currency, ids)
			if err != nil {
				p.log.Warn("price fetch failed",
					zap.String("currency", currency),
					zap.Strings("coins", ids), zap.Error(err))
				return nil
			}

			now := time.Now().UTC()
			for _, coin := range group {
				price, ok := prices[coin.ID]
				if !ok {
					p.log.Warn("coin missing from price response",
						zap.String("coin", coin.ID))
					continue
				}
				if err := p.store.SetCoinPrice(ctx, coin.ID, price, now); err != nil {
					return err
				}
				coin.CurrentPrice = &price
				coin.PriceUpdatedAt = &now

				mu.Lock()
				updated = append(updated, coin)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updated, nil
}

// evaluateCoin runs the threshold decision for every active user of the
// coin against the price fetched this cycle. Delivery failures are
// contained per user; a store failure is returned to abort the cycle.
func (p *Poller) evaluateCoin(ctx context.Context, coin domain.Coin) error {
	current := *coin.CurrentPrice

	settings, err := p.store.ListActiveByCoin(ctx, coin.ID)
	if err != nil {
		return err
	}

	for _, s := range settings {
		if ctx.Err() != nil {
			return nil
		}

		ev := domain.Evaluate(s.LastNotifiedPrice, current, s.ThresholdPercent)
		switch ev.Action {
		case domain.ActionInitialize:
			// First sight: store the baseline silently.
			if err := p.store.SetLastNotified(ctx, s.ChatID, coin.ID, current); err != nil {
				return err
			}

		case domain.ActionNotify:
			text := domain.AlertMessage(coin, s, current, ev)
			if err := p.notifier.SendAlert(s.ChatID, text); err != nil {
				if errors.Is(err, domain.ErrUserBlocked) {
					p.log.Info("user blocked the bot, deactivating",
						zap.Int64("chat", s.ChatID))
					if err := p.store.SetActive(ctx, s.ChatID, coin.ID, false); err != nil {
						return err
					}
					continue
				}
				// Baseline stays; the user is re-evaluated next cycle.
				p.log.Warn("alert delivery failed",
					zap.Int64("chat", s.ChatID), zap.Error(err))
				continue
			}
			if err := p.store.SetLastNotified(ctx, s.ChatID, coin.ID, current); err != nil {
				return err
			}

		case domain.ActionNoOp:
		}
	}
	return nil
}
