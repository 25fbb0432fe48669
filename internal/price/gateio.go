package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// GateIOSource quotes spot tickers from the public Gate.io API.
type GateIOSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewGateIOSource creates a client for the Gate.io spot ticker API.
func NewGateIOSource(baseURL string) *GateIOSource {
	return &GateIOSource{
		baseURL:    baseURL,
		httpClient: newRetryClient(),
	}
}

// Name implements Source.
func (s *GateIOSource) Name() string { return "gateio" }

// Quote fetches the last trade price for the pool's currency pair.
func (s *GateIOSource) Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error) {
	if pool.GateIOSymbol == "" {
		return model.PriceQuote{}, errSymbolNotListed
	}

	u := fmt.Sprintf("%s?currency_pair=%s", s.baseURL, url.QueryEscape(pool.GateIOSymbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error fetching ticker from gateio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceQuote{}, fmt.Errorf("gateio API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: [{ currency_pair: "XRP_USDT", last: "1.984", ... }]
	var tickers []struct {
		CurrencyPair string `json:"currency_pair"`
		Last         string `json:"last"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return model.PriceQuote{}, fmt.Errorf("error decoding gateio response: %w", err)
	}
	if len(tickers) == 0 {
		return model.PriceQuote{}, fmt.Errorf("no ticker returned for %s", pool.GateIOSymbol)
	}

	last, err := strconv.ParseFloat(tickers[0].Last, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("gateio ticker has malformed last price %q", tickers[0].Last)
	}

	return checkQuote(model.PriceQuote{
		Symbol:    pool.Symbol,
		USDPrice:  last,
		Source:    s.Name(),
		FetchedAt: time.Now(),
	})
}
