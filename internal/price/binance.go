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

// BinanceSource quotes spot prices from the public Binance ticker API.
type BinanceSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceSource creates a client for the Binance price ticker API.
func NewBinanceSource(baseURL string) *BinanceSource {
	return &BinanceSource{
		baseURL:    baseURL,
		httpClient: newRetryClient(),
	}
}

// Name implements Source.
func (s *BinanceSource) Name() string { return "binance" }

// Quote fetches the current price for the pool's trading symbol.
func (s *BinanceSource) Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error) {
	if pool.BinanceSymbol == "" {
		return model.PriceQuote{}, errSymbolNotListed
	}

	u := fmt.Sprintf("%s?symbol=%s", s.baseURL, url.QueryEscape(pool.BinanceSymbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error fetching ticker from binance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceQuote{}, fmt.Errorf("binance API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: { symbol: "BTCUSDT", price: "90500.10000000" }
	var response struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.PriceQuote{}, fmt.Errorf("error decoding binance response: %w", err)
	}

	p, err := strconv.ParseFloat(response.Price, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("binance ticker has malformed price %q", response.Price)
	}

	return checkQuote(model.PriceQuote{
		Symbol:    pool.Symbol,
		USDPrice:  p,
		Source:    s.Name(),
		FetchedAt: time.Now(),
	})
}
