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

// OKXSource quotes spot tickers from the public OKX market API.
type OKXSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewOKXSource creates a client for the OKX market ticker API.
func NewOKXSource(baseURL string) *OKXSource {
	return &OKXSource{
		baseURL:    baseURL,
		httpClient: newRetryClient(),
	}
}

// Name implements Source.
func (s *OKXSource) Name() string { return "okx" }

// Quote fetches the last trade price for the pool's instrument.
func (s *OKXSource) Quote(ctx context.Context, pool config.PoolConfig) (model.PriceQuote, error) {
	if pool.OKXSymbol == "" {
		return model.PriceQuote{}, errSymbolNotListed
	}

	u := fmt.Sprintf("%s?instId=%s", s.baseURL, url.QueryEscape(pool.OKXSymbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("error fetching ticker from okx: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceQuote{}, fmt.Errorf("okx API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: { code: "0", data: [{ last: "90500.1", ... }] }
	var response struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.PriceQuote{}, fmt.Errorf("error decoding okx response: %w", err)
	}
	if response.Code != "0" || len(response.Data) == 0 {
		return model.PriceQuote{}, fmt.Errorf("okx ticker code %q with %d entries", response.Code, len(response.Data))
	}

	last, err := strconv.ParseFloat(response.Data[0].Last, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("okx ticker has malformed last price %q", response.Data[0].Last)
	}

	return checkQuote(model.PriceQuote{
		Symbol:    pool.Symbol,
		USDPrice:  last,
		Source:    s.Name(),
		FetchedAt: time.Now(),
	})
}
