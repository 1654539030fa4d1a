package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/service"
	"Kavach/internal/service/provider"
	xhttp "Kavach/pkg/http"
	"Kavach/pkg/util"
)

const Name = "yahoo"

var _ service.PriceProvider = (*Client)(nil)

// Client reads daily closes from the Yahoo Finance chart API.
type Client struct {
	http    *xhttp.Client
	baseURL string
	now     func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithClock overrides the clock used to compute history windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a chart API client.
func New(httpClient *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: "https://query1.finance.yahoo.com",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchLatest returns the last non-null close of the recent daily window.
func (c *Client) FetchLatest(ctx context.Context, ticker string) (float64, error) {
	s, err := c.chart(ctx, ticker, map[string][]string{
		"range":    {"5d"},
		"interval": {"1d"},
	})
	if err != nil {
		return 0, err
	}
	last, _ := s.Last()
	return last.Close, nil
}

// FetchHistory returns lookbackDays of daily closes ending now.
func (c *Client) FetchHistory(ctx context.Context, ticker string, lookbackDays int) (models.PriceSeries, error) {
	end := c.now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)
	return c.chart(ctx, ticker, map[string][]string{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {"1d"},
	})
}

func (c *Client) chart(ctx context.Context, ticker string, query map[string][]string) (models.PriceSeries, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(ticker))

	var resp chartResponse
	if err := c.http.GetJSON(ctx, endpoint, query, &resp); err != nil {
		return models.PriceSeries{}, provider.Wrap(Name, ticker, err)
	}
	if resp.Chart.Error != nil {
		return models.PriceSeries{}, provider.Parse(Name, ticker, "%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return models.PriceSeries{}, provider.Empty(Name, ticker)
	}

	r := resp.Chart.Result[0]
	closes := r.Indicators.Quote[0].Close
	if len(closes) != len(r.Timestamp) {
		return models.PriceSeries{}, provider.Parse(Name, ticker, "%d timestamps but %d closes", len(r.Timestamp), len(closes))
	}

	pts := make([]models.PricePoint, 0, len(closes))
	for i, v := range closes {
		if v == nil {
			continue
		}
		pts = append(pts, models.PricePoint{Date: util.TruncateDay(time.Unix(r.Timestamp[i], 0)), Close: *v})
	}
	s := models.NewPriceSeries(ticker, pts)
	if s.Empty() {
		return models.PriceSeries{}, provider.Empty(Name, ticker)
	}
	return s, nil
}
