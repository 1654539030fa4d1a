package coingecko

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/service"
	"Kavach/internal/service/provider"
	xhttp "Kavach/pkg/http"
	"Kavach/pkg/util"
)

const Name = "coingecko"

var _ service.PriceProvider = (*Client)(nil)

// Client reads USD prices from the CoinGecko public API. Only tickers
// present in the id map are served.
type Client struct {
	http    *xhttp.Client
	baseURL string
	ids     map[string]string
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithIDs sets the ticker to coin id map.
func WithIDs(ids map[string]string) Option {
	return func(c *Client) { c.ids = ids }
}

// New creates a CoinGecko client.
func New(httpClient *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: "https://api.coingecko.com",
		ids:     map[string]string{"BTC-USD": "bitcoin", "ETH-USD": "ethereum"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) coinID(ticker string) (string, error) {
	id, ok := c.ids[ticker]
	if !ok {
		return "", provider.Unsupported(Name, ticker)
	}
	return id, nil
}

// FetchLatest calls /simple/price for one coin.
func (c *Client) FetchLatest(ctx context.Context, ticker string) (float64, error) {
	id, err := c.coinID(ticker)
	if err != nil {
		return 0, err
	}

	var resp map[string]map[string]float64
	err = c.http.GetJSON(ctx, c.baseURL+"/api/v3/simple/price", map[string][]string{
		"ids":           {id},
		"vs_currencies": {"usd"},
	}, &resp)
	if err != nil {
		return 0, provider.Wrap(Name, ticker, err)
	}

	price, ok := resp[id]["usd"]
	if !ok {
		return 0, provider.Parse(Name, ticker, "no usd price for %s", id)
	}
	if price <= 0 {
		return 0, provider.Parse(Name, ticker, "non-positive price %v", price)
	}
	return price, nil
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// FetchHistory calls /coins/{id}/market_chart and keeps the last sample
// of each UTC day.
func (c *Client) FetchHistory(ctx context.Context, ticker string, lookbackDays int) (models.PriceSeries, error) {
	id, err := c.coinID(ticker)
	if err != nil {
		return models.PriceSeries{}, err
	}

	var resp marketChart
	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/market_chart", c.baseURL, id)
	err = c.http.GetJSON(ctx, endpoint, map[string][]string{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(lookbackDays)},
	}, &resp)
	if err != nil {
		return models.PriceSeries{}, provider.Wrap(Name, ticker, err)
	}

	pts := make([]models.PricePoint, 0, len(resp.Prices))
	for _, sample := range resp.Prices {
		pts = append(pts, models.PricePoint{
			Date:  util.DayFromUnixMillis(int64(sample[0])),
			Close: sample[1],
		})
	}
	s := models.NewPriceSeries(ticker, pts)
	if s.Empty() {
		return models.PriceSeries{}, provider.Empty(Name, ticker)
	}
	return s, nil
}
