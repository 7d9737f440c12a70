package pricesource

import "fmt"

// Kind classifies a failed price fetch. RateLimited and Transient are worth
// retrying; NotFound and Malformed are not.
type Kind int

const (
	KindRateLimited Kind = iota
	KindNotFound
	KindTransient
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "malformed"
	}
}

// FetchError describes why a price could not be fetched for a coin.
type FetchError struct {
	Kind   Kind
	CoinID string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.CoinID, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.CoinID, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed if repeated.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}
