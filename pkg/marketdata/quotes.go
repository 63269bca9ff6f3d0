package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/haoxu/ivarb/pkg/models"
)

// QuoteClient talks to a public delayed-quote JSON API exposing daily price
// history and option chains (the Yahoo Finance chart/options endpoints by
// default). It implements QuoteProvider, ChainProvider and HistoryProvider.
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewQuoteClient(baseURL string) *QuoteClient {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &QuoteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// Public endpoint; stay well under any throttle.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (c *QuoteClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrNoData, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// LatestPrice returns the most recent traded price for a symbol.
func (c *QuoteClient) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var out chartResponse
	q := url.Values{"range": {"1d"}, "interval": {"1d"}}
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), q, &out); err != nil {
		return 0, err
	}
	if len(out.Chart.Result) == 0 {
		return 0, fmt.Errorf("%w: empty chart for %s", ErrNoData, symbol)
	}
	price := out.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, fmt.Errorf("%w: no price for %s", ErrNoData, symbol)
	}
	return price, nil
}

// ClosingPrices returns up to window+1 trailing daily closes, oldest first.
func (c *QuoteClient) ClosingPrices(ctx context.Context, symbol string, window int) ([]float64, error) {
	var out chartResponse
	q := url.Values{"range": {"3mo"}, "interval": {"1d"}}
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), q, &out); err != nil {
		return nil, err
	}
	if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: empty history for %s", ErrNoData, symbol)
	}

	closes := make([]float64, 0, window+1)
	for _, c := range out.Chart.Result[0].Indicators.Quote[0].Close {
		if c == nil || *c <= 0 {
			continue // market holiday gaps come back as nulls
		}
		closes = append(closes, *c)
	}
	if len(closes) < window+1 {
		return nil, fmt.Errorf("%w: only %d closes for %s", ErrNoData, len(closes), symbol)
	}
	return closes, nil
}

type optionsResponse struct {
	OptionChain struct {
		Result []struct {
			Options []struct {
				Calls []optionRow `json:"calls"`
				Puts  []optionRow `json:"puts"`
			} `json:"options"`
		} `json:"result"`
	} `json:"optionChain"`
}

type optionRow struct {
	Strike     *float64 `json:"strike"`
	ImpliedVol *float64 `json:"impliedVolatility"`
}

// Chain returns the nearest-expiry option chain as validated quotes.
// Rows missing strike or volatility are rejected at this boundary so the
// acquirer never sees a partially-filled record.
func (c *QuoteClient) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	var out optionsResponse
	if err := c.getJSON(ctx, "/v7/finance/options/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	if len(out.OptionChain.Result) == 0 || len(out.OptionChain.Result[0].Options) == 0 {
		return nil, fmt.Errorf("%w: no option chain for %s", ErrNoData, symbol)
	}

	nearest := out.OptionChain.Result[0].Options[0]
	quotes := make([]models.OptionQuote, 0, len(nearest.Calls)+len(nearest.Puts))
	appendRows := func(rows []optionRow, typ models.OptionType) {
		for _, r := range rows {
			if r.Strike == nil || r.ImpliedVol == nil {
				continue
			}
			quotes = append(quotes, models.OptionQuote{
				Strike:     *r.Strike,
				Type:       typ,
				ImpliedVol: *r.ImpliedVol * 100, // fraction -> percentage points
			})
		}
	}
	appendRows(nearest.Calls, models.OptionCall)
	appendRows(nearest.Puts, models.OptionPut)

	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: option chain for %s had no complete rows", ErrNoData, symbol)
	}
	return quotes, nil
}
