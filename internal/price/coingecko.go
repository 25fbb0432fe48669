package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// CoinGeckoSource is the last-resort aggregator fallback. Unlike the exchange
// venues it is keyed by CoinGecko asset id rather than a trading pair.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates a client for the CoinGecko simple price API.
func NewCoinGeckoSource(baseURL string) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL:    baseURL,
		httpClient: newRetryClient(),
	}
}

// Name implements Source.
func (s *CoinGeckoSource) Name() string { return "coingecko" }

// Quote fetches the USD price for the pool's CoinGecko asset id.
func (s *CoinGeckoSource) Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error) {
	if pool.CoinGeckoID == "" {
		return model.PriceQuote{}, errSymbolNotListed
	}

	u := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", s.baseURL, url.QueryEscape(pool.CoinGeckoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error fetching price from coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceQuote{}, fmt.Errorf("coingecko API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: { "bitcoin": { "usd": 90500.1 } }
	var response map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.PriceQuote{}, fmt.Errorf("error decoding coingecko response: %w", err)
	}

	entry, ok := response[pool.CoinGeckoID]
	if !ok {
		return model.PriceQuote{}, fmt.Errorf("coingecko response missing id %q", pool.CoinGeckoID)
	}

	return checkQuote(model.PriceQuote{
		Symbol:    pool.Symbol,
		USDPrice:  entry.USD,
		Source:    s.Name(),
		FetchedAt: time.Now(),
	})
}
