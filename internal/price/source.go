// Package price fetches USD token prices from a chain of market data venues.
//
// Sources are tried in a fixed fallback order through a uniform Quote
// contract, so adding a venue never duplicates control flow. Every network
// failure is contained to the source that produced it.
package price

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// ErrQuoteUnavailable is returned when every configured source failed to
// produce a usable quote for a symbol.
var ErrQuoteUnavailable = errors.New("price: no source produced a valid quote")

// errSymbolNotListed marks a pool whose token is not listed on a given venue,
// so the chain moves on without logging a network failure.
var errSymbolNotListed = errors.New("price: symbol not listed on this venue")

// Source is a single price venue. Quote returns a validated PriceQuote or an
// error; it never panics and never returns a non-positive price.
type Source interface {
	// Name identifies the venue in logs and quote provenance
	Name() string

	// Quote fetches the USD price for the pool's reward token
	Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error)
}

// newRetryClient creates an HTTP client with retry capabilities, matching the
// original tooling's three attempts with increasing delay.
func newRetryClient() *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c.StandardClient()
}

// checkQuote rejects zero, negative and non-finite prices before they can
// enter conversion math.
func checkQuote(q model.PriceQuote) (model.PriceQuote, error) {
	if !q.IsValid() {
		return model.PriceQuote{}, errors.New("price: invalid price in response")
	}
	return q, nil
}
