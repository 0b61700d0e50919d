package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"coinvault/internal/application/port"
	"coinvault/internal/domain/model"
)

const (
	defaultBaseURL   = "https://pro-api.coingecko.com/api/v3"
	defaultPerPage   = 250
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 3
	defaultRetryWait = 60 * time.Second
)

// Options configures the client. Zero values fall back to free-tier defaults.
type Options struct {
	BaseURL    string
	APIKey     string // pro API key; empty means unauthenticated free tier
	VSCurrency string
	PerPage    int
	Timeout    time.Duration
	MaxRetries int           // bounded attempts for the rate-limit retry loop
	RetryWait  time.Duration // baseline wait, grows per attempt
}

// Client fetches listings and historical charts from the CoinGecko API.
// Stateless per call; safe for reuse across a run.
type Client struct {
	http       *resty.Client
	vsCurrency string
	perPage    int
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.VSCurrency == "" {
		opts.VSCurrency = "usd"
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}

	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryWait * 8).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// only 429 is retried internally; other statuses surface at once
			return r != nil && r.StatusCode() == 429
		})
	if opts.APIKey != "" {
		hc.SetHeader("x-cg-pro-api-key", opts.APIKey)
	}

	return &Client{http: hc, vsCurrency: opts.VSCurrency, perPage: opts.PerPage}
}

type marketRow struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

// Markets fetches the ranked instrument listing. Only the first page is
// requested; tracking more instruments than one page holds is a known
// limitation of the source design.
func (c *Client) Markets(ctx context.Context) ([]model.Instrument, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": c.vsCurrency,
			"order":       "market_cap_desc",
			"per_page":    strconv.Itoa(c.perPage),
			"page":        "1",
		}).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("coins/markets request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	var rows []marketRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("%w: decode coins/markets: %v", ErrUnrecognized, err)
	}

	instruments := make([]model.Instrument, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		instruments = append(instruments, model.Instrument{
			AssetID:       row.ID,
			Symbol:        row.Symbol,
			Name:          row.Name,
			MarketCapRank: row.MarketCapRank,
		})
	}
	return instruments, nil
}

type chartPayload struct {
	Prices       [][]*float64 `json:"prices"`
	MarketCaps   [][]*float64 `json:"market_caps"`
	TotalVolumes [][]*float64 `json:"total_volumes"`
}

// MarketChartRange fetches the [from, to] window (unix seconds) for one asset
// and normalizes it into ordered data points. Source timestamps arrive in
// milliseconds and are truncated to whole seconds.
func (c *Client) MarketChartRange(ctx context.Context, assetID string, from, to int64) ([]model.MarketDataPoint, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", assetID).
		SetQueryParams(map[string]string{
			"vs_currency": c.vsCurrency,
			"from":        strconv.FormatInt(from, 10),
			"to":          strconv.FormatInt(to, 10),
		}).
		Get("/coins/{id}/market_chart/range")
	if err != nil {
		return nil, fmt.Errorf("market_chart/range request for %s: %w", assetID, err)
	}
	if resp.StatusCode() != 200 {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	var payload chartPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: decode market_chart for %s: %v", ErrUnrecognized, assetID, err)
	}
	return mergeChart(payload), nil
}

// mergeChart joins the three parallel series by timestamp. Each entry is a
// [ms, value] pair; value may be null.
func mergeChart(p chartPayload) []model.MarketDataPoint {
	byTS := make(map[int64]*model.MarketDataPoint)

	point := func(ms float64) *model.MarketDataPoint {
		ts := int64(ms) / 1000 // truncation, not rounding
		dp, ok := byTS[ts]
		if !ok {
			dp = &model.MarketDataPoint{TimestampUnix: ts}
			byTS[ts] = dp
		}
		return dp
	}

	for _, pair := range p.Prices {
		if len(pair) < 2 || pair[0] == nil {
			continue
		}
		point(*pair[0]).PriceUSD = pair[1]
	}
	for _, pair := range p.MarketCaps {
		if len(pair) < 2 || pair[0] == nil {
			continue
		}
		point(*pair[0]).MarketCapUSD = pair[1]
	}
	for _, pair := range p.TotalVolumes {
		if len(pair) < 2 || pair[0] == nil {
			continue
		}
		point(*pair[0]).VolumeUSD = pair[1]
	}

	points := make([]model.MarketDataPoint, 0, len(byTS))
	for _, dp := range byTS {
		points = append(points, *dp)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TimestampUnix < points[j].TimestampUnix })
	return points
}

var _ port.PriceSource = (*Client)(nil)
