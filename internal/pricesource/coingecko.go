package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 10 * time.Second
	userAgent      = "crypto-tracker-bot/1.0"

	// In-call retries for transient failures. Rate limits are never retried
	// in-call; the poller simply tries again next cycle.
	maxRetries = 2
)

// Config tunes the client. Zero values fall back to CoinGecko-friendly
// defaults.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	CacheTTL          time.Duration
}

// Client fetches spot prices from the CoinGecko simple-price endpoint.
// Requests are rate limited and successful lookups are kept in a short-TTL
// cache so on-demand reads between cycles do not hit the API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	cache   *gocache.Cache
	log     *zap.Logger
}

// New creates a price source client.
func New(cfg Config, log *zap.Logger) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30 // CoinGecko free tier
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		cache:   gocache.New(ttl, 2*ttl),
		log:     log,
	}
}

// Fetch returns the current price of coinID in currency. Transient failures
// are retried in-call with jittered backoff; all failures come back as a
// *FetchError.
func (c *Client) Fetch(ctx context.Context, coinID, currency string) (decimal.Decimal, error) {
	if coinID == "" || currency == "" {
		return decimal.Zero, &FetchError{Kind: KindMalformed, CoinID: coinID, Err: errors.New("empty coin id or currency")}
	}
	prices, err := c.fetchBatch(ctx, currency, []string{coinID})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[coinID]
	if !ok {
		return decimal.Zero, &FetchError{Kind: KindNotFound, CoinID: coinID,
			Err: fmt.Errorf("no %s quote in response", currency)}
	}
	return price, nil
}

// FetchMany returns current prices for several coins quoted in the same
// currency using one batched request, which is what keeps a multi-coin
// deployment inside the free-tier request budget. Coins missing from the
// response are simply absent from the returned map.
func (c *Client) FetchMany(ctx context.Context, currency string, coinIDs []string) (map[string]decimal.Decimal, error) {
	if currency == "" || len(coinIDs) == 0 {
		return nil, &FetchError{Kind: KindMalformed, Err: errors.New("empty coin list or currency")}
	}
	return c.fetchBatch(ctx, currency, coinIDs)
}

// CachedPrice is Fetch behind the cache: a recent successful lookup is
// served without touching the API. Used by on-demand bot commands.
func (c *Client) CachedPrice(ctx context.Context, coinID, currency string) (decimal.Decimal, error) {
	if v, ok := c.cache.Get(cacheKey(coinID, currency)); ok {
		return v.(decimal.Decimal), nil
	}
	return c.Fetch(ctx, coinID, currency)
}

// fetchBatch performs the request with in-call retries for transient
// failures and caches every quote it gets back.
func (c *Client) fetchBatch(ctx context.Context, currency string, coinIDs []string) (map[string]decimal.Decimal, error) {
	ids := strings.Join(coinIDs, ",")

	b := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		prices, err := c.requestOnce(ctx, currency, ids)
		if err == nil {
			for id, price := range prices {
				c.cache.Set(cacheKey(id, currency), price, gocache.DefaultExpiration)
			}
			return prices, nil
		}

		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindTransient && attempt < maxRetries {
			delay := b.Duration()
			c.log.Debug("retrying price fetch",
				zap.String("coins", ids), zap.Duration("delay", delay), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, &FetchError{Kind: KindTransient, CoinID: ids, Err: ctx.Err()}
			case <-time.After(delay):
			}
			continue
		}
		return nil, err
	}
}

func (c *Client) requestOnce(ctx context.Context, currency, ids string) (map[string]decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindTransient, CoinID: ids, Err: err}
	}

	q := url.Values{}
	q.Set("ids", ids)
	q.Set("vs_currencies", currency)
	if c.apiKey != "" {
		q.Set("x_cg_demo_api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, CoinID: ids, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, CoinID: ids, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Kind: KindRateLimited, CoinID: ids}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: KindNotFound, CoinID: ids}
	case resp.StatusCode >= 500:
		return nil, &FetchError{Kind: KindTransient, CoinID: ids,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, &FetchError{Kind: KindMalformed, CoinID: ids,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	// {"<coin_id>": {"<currency>": 12.34}, ...}
	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, &FetchError{Kind: KindMalformed, CoinID: ids, Err: err}
	}

	prices := make(map[string]decimal.Decimal, len(body))
	for id, quotes := range body {
		quote, ok := quotes[currency]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(quote.String())
		if err != nil {
			return nil, &FetchError{Kind: KindMalformed, CoinID: id, Err: err}
		}
		prices[id] = price
	}
	return prices, nil
}

func cacheKey(coinID, currency string) string {
	return coinID + "/" + currency
}
