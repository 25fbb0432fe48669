package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// NBCEXSource is the primary price source: the NBC exchange's own ticker API,
// keyed by access token. It is the only venue that quotes the native NBC pair.
type NBCEXSource struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
}

// NewNBCEXSource creates a client for the NBC exchange ticker API.
func NewNBCEXSource(baseURL, accessKey string) *NBCEXSource {
	return &NBCEXSource{
		baseURL:    baseURL,
		accessKey:  accessKey,
		httpClient: newRetryClient(),
	}
}

// Name implements Source.
func (s *NBCEXSource) Name() string { return "nbcex" }

// Quote fetches the buy-side ticker price for the pool's exchange pair.
func (s *NBCEXSource) Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error) {
	if pool.NBCEXSymbol == "" {
		return model.PriceQuote{}, errSymbolNotListed
	}

	u := fmt.Sprintf("%s?symbol=%s&accessKey=%s", s.baseURL, url.QueryEscape(pool.NBCEXSymbol), url.QueryEscape(s.accessKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching %s price from NBC exchange", pool.Symbol)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error fetching ticker from nbcex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceQuote{}, fmt.Errorf("nbcex API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: { status: "success", message, data: { buy: 90634.30, ... } }
	var response struct {
		Status string `json:"status"`
		Data   struct {
			Buy json.Number `json:"buy"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.PriceQuote{}, fmt.Errorf("error decoding nbcex response: %w", err)
	}
	if response.Status != "success" {
		return model.PriceQuote{}, fmt.Errorf("nbcex ticker status %q", response.Status)
	}

	buy, err := response.Data.Buy.Float64()
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("nbcex ticker missing buy price: %w", err)
	}

	return checkQuote(model.PriceQuote{
		Symbol:    pool.Symbol,
		USDPrice:  buy,
		Source:    s.Name(),
		FetchedAt: time.Now(),
	})
}
