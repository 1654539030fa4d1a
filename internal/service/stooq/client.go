package stooq

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/service"
	"Kavach/internal/service/provider"
	xhttp "Kavach/pkg/http"
	"Kavach/pkg/util"
)

const Name = "stooq"

// priceField is the position of the price in the quote CSV data row.
const priceField = 3

var _ service.PriceProvider = (*Client)(nil)

// Client reads CSV quotes from stooq.com.
type Client struct {
	http    *xhttp.Client
	baseURL string
	symbols map[string]string
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithSymbols sets the ticker to Stooq symbol map. Unmapped tickers are
// sent as-is.
func WithSymbols(m map[string]string) Option {
	return func(c *Client) { c.symbols = m }
}

// New creates a Stooq client.
func New(httpClient *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: "https://stooq.com",
		symbols: map[string]string{"GLD": "GLD.US", "TLT": "TLT.US"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) symbol(ticker string) string {
	if s, ok := c.symbols[ticker]; ok {
		return s
	}
	return ticker
}

// FetchLatest reads the single-row quote CSV.
func (c *Client) FetchLatest(ctx context.Context, ticker string) (float64, error) {
	body, err := c.http.GetBytes(ctx, c.baseURL+"/q/l/", map[string][]string{
		"s": {c.symbol(ticker)},
		"f": {"sd2t2ohlcv"},
		"h": {""},
		"e": {"csv"},
	})
	if err != nil {
		return 0, provider.Wrap(Name, ticker, err)
	}
	return parseQuote(ticker, body)
}

func parseQuote(ticker string, body []byte) (float64, error) {
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) < 2 {
		return 0, provider.Parse(Name, ticker, "quote has no data row")
	}
	parts := strings.Split(strings.TrimSpace(lines[1]), ",")
	if len(parts) <= priceField {
		return 0, provider.Parse(Name, ticker, "quote row has %d fields", len(parts))
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[priceField]), 64)
	if err != nil {
		return 0, provider.Parse(Name, ticker, "invalid price %q", parts[priceField])
	}
	if price <= 0 {
		return 0, provider.Parse(Name, ticker, "non-positive price %v", price)
	}
	return price, nil
}

// FetchHistory reads the daily history CSV and keeps the trailing
// lookbackDays rows.
func (c *Client) FetchHistory(ctx context.Context, ticker string, lookbackDays int) (models.PriceSeries, error) {
	body, err := c.http.GetBytes(ctx, c.baseURL+"/q/d/l/", map[string][]string{
		"s": {strings.ToLower(c.symbol(ticker))},
		"i": {"d"},
	})
	if err != nil {
		return models.PriceSeries{}, provider.Wrap(Name, ticker, err)
	}

	pts, err := parseHistory(ticker, body)
	if err != nil {
		return models.PriceSeries{}, err
	}
	s := models.NewPriceSeries(ticker, pts)
	if s.Empty() {
		return models.PriceSeries{}, provider.Empty(Name, ticker)
	}
	if lookbackDays > 0 && s.Len() > lookbackDays {
		s.Points = s.Points[s.Len()-lookbackDays:]
	}
	return s, nil
}

func parseHistory(ticker string, body []byte) ([]models.PricePoint, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, provider.Empty(Name, ticker)
	}
	if err != nil {
		return nil, provider.Parse(Name, ticker, "read header: %v", err)
	}
	dateIdx, closeIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateIdx = i
		case "close":
			closeIdx = i
		}
	}
	if dateIdx < 0 || closeIdx < 0 {
		// Stooq answers unknown symbols with a plain "No data" body.
		if strings.Contains(strings.ToLower(string(body)), "no data") {
			return nil, provider.Empty(Name, ticker)
		}
		return nil, provider.Parse(Name, ticker, "missing Date/Close columns in %v", header)
	}

	var pts []models.PricePoint
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, provider.Parse(Name, ticker, "read row: %v", err)
		}
		if len(rec) <= dateIdx || len(rec) <= closeIdx {
			continue
		}
		day, ok := util.ParseDay(rec[dateIdx])
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(rec[closeIdx], 64)
		if err != nil {
			continue
		}
		pts = append(pts, models.PricePoint{Date: day, Close: v})
	}
	return pts, nil
}
