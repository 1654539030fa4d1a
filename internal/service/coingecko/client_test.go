package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"Kavach/internal/domain/models"
	xhttp "Kavach/pkg/http"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(xhttp.NewClient(xhttp.WithTimeout(5*time.Second)), WithBaseURL(srv.URL))
}

func TestFetchLatest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/simple/price" || r.URL.Query().Get("ids") != "ethereum" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3150.5}}`))
	})

	price, err := c.FetchLatest(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if price != 3150.5 {
		t.Fatalf("expected 3150.5, got %v", price)
	}
}

func TestFetchLatestMissingCoinIsParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.FetchLatest(context.Background(), "BTC-USD")
	var pe *models.ProviderError
	if !errors.As(err, &pe) || pe.Code != models.ProviderParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestUnknownTickerIsUnsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	_, err := c.FetchHistory(context.Background(), "GLD", 220)
	var pe *models.ProviderError
	if !errors.As(err, &pe) || pe.Code != models.ProviderUnsupported {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestFetchHistoryBucketsByDayLastSampleWins(t *testing.T) {
	day1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	body := `{"prices":[` +
		`[` + ms(day1.Add(1*time.Hour)) + `,100],` +
		`[` + ms(day1.Add(23*time.Hour)) + `,110],` +
		`[` + ms(day2.Add(2*time.Hour)) + `,120]]}`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/bitcoin/market_chart" || r.URL.Query().Get("days") != "220" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(body))
	})

	s, err := c.FetchHistory(context.Background(), "BTC-USD", 220)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 daily points, got %d", s.Len())
	}
	if s.Points[0].Close != 110 || !s.Points[0].Date.Equal(day1) {
		t.Fatalf("unexpected first point %+v", s.Points[0])
	}
	if s.Points[1].Close != 120 {
		t.Fatalf("unexpected second point %+v", s.Points[1])
	}
}

func TestFetchHistoryServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := c.FetchHistory(context.Background(), "BTC-USD", 220)
	var pe *models.ProviderError
	if !errors.As(err, &pe) || pe.Code != models.ProviderStatus {
		t.Fatalf("expected status error, got %v", err)
	}
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
