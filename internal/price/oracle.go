package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// stablecoinSymbol short-circuits to a constant $1 quote without a network call.
const stablecoinSymbol = "USDT"

// QuoteCache memoizes quotes for the lifetime of one oracle. It is owned by
// the oracle that created it rather than living at package scope, so two runs
// in the same process never share hidden state.
type QuoteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]model.PriceQuote
}

// NewQuoteCache creates a cache whose entries expire after ttl.
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		ttl:     ttl,
		entries: make(map[string]model.PriceQuote),
	}
}

// Get returns a cached quote that has not exceeded the cache TTL.
func (c *QuoteCache) Get(symbol string) (model.PriceQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.entries[symbol]
	if !ok || time.Since(q.FetchedAt) > c.ttl {
		return model.PriceQuote{}, false
	}
	return q, true
}

// Put stores a quote under its symbol.
func (c *QuoteCache) Put(q model.PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[q.Symbol] = q
}

// Oracle resolves USD prices through an ordered chain of sources with a
// per-call timeout and an in-run cache.
type Oracle struct {
	sources []Source
	pools   map[string]config.PoolConfig
	timeout time.Duration
	cache   *QuoteCache
}

// nbcPair is the synthetic pool entry used to price the native token. Only
// the NBC exchange lists the pair, so the chain degrades to a single venue.
var nbcPair = config.PoolConfig{Symbol: "NBC", NBCEXSymbol: "nbcusdt"}

// NewOracle wires the default source chain in the operational fallback order:
// NBC exchange first, then Gate.io, OKX, Binance, and finally CoinGecko.
func NewOracle(cfg config.Config, pools []config.PoolConfig) *Oracle {
	sources := []Source{
		NewNBCEXSource(cfg.NBCEXBaseURL, cfg.NBCEXAccessKey),
		NewGateIOSource(cfg.GateIOBaseURL),
		NewOKXSource(cfg.OKXBaseURL),
		NewBinanceSource(cfg.BinanceBaseURL),
		NewCoinGeckoSource(cfg.CoinGeckoBaseURL),
	}
	return NewOracleWithSources(sources, pools, cfg.PriceTimeout)
}

// NewOracleWithSources builds an oracle over an explicit source chain.
func NewOracleWithSources(sources []Source, pools []config.PoolConfig, timeout time.Duration) *Oracle {
	bysym := make(map[string]config.PoolConfig, len(pools)+1)
	for _, p := range pools {
		bysym[p.Symbol] = p
	}
	bysym[nbcPair.Symbol] = nbcPair

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Oracle{
		sources: sources,
		pools:   bysym,
		timeout: timeout,
		cache:   NewQuoteCache(time.Minute),
	}
}

// TokenPrice resolves the USD price for a symbol, walking the source chain
// until one venue returns a valid quote. Transient failures are logged as
// warnings and absorbed; only full chain exhaustion surfaces as an error.
func (o *Oracle) TokenPrice(ctx context.Context, symbol string) (model.PriceQuote, error) {
	if symbol == stablecoinSymbol {
		return model.PriceQuote{
			Symbol:    symbol,
			USDPrice:  1.0,
			Source:    "fixed",
			FetchedAt: time.Now(),
		}, nil
	}

	if q, ok := o.cache.Get(symbol); ok {
		return q, nil
	}

	pool, ok := o.pools[symbol]
	if !ok {
		return model.PriceQuote{}, fmt.Errorf("price: unknown symbol %q", symbol)
	}

	for _, src := range o.sources {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		q, err := src.Quote(callCtx, pool)
		cancel()

		if err == nil {
			logrus.WithFields(logrus.Fields{
				"symbol": symbol,
				"source": src.Name(),
				"price":  q.USDPrice,
			}).Debug("Price resolved")
			o.cache.Put(q)
			return q, nil
		}

		if err != errSymbolNotListed {
			logrus.WithFields(logrus.Fields{
				"symbol": symbol,
				"source": src.Name(),
			}).Warnf("Price source failed: %v", err)
		}
	}

	return model.PriceQuote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
}

// NativePrice resolves the USD price of the native NBC token.
func (o *Oracle) NativePrice(ctx context.Context) (model.PriceQuote, error) {
	return o.TokenPrice(ctx, nbcPair.Symbol)
}

// TokenPrices resolves all symbols concurrently. One symbol's failure never
// fails the batch: the result map carries an entry for every requested symbol,
// nil where no source could quote it. Each goroutine writes a distinct key,
// so the only synchronization needed is around map access itself.
func (o *Oracle) TokenPrices(ctx context.Context, symbols []string) map[string]*model.PriceQuote {
	results := make(map[string]*model.PriceQuote, len(symbols))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			var entry *model.PriceQuote
			if q, err := o.TokenPrice(ctx, symbol); err == nil {
				entry = &q
			} else {
				logrus.Warnf("No price for %s: %v", symbol, err)
			}

			mu.Lock()
			results[symbol] = entry
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return results
}
