package stooq

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
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

func TestFetchLatestReadsFourthField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/q/l/" || r.URL.Query().Get("s") != "GLD.US" || r.URL.Query().Get("e") != "csv" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\r\nGLD.US,2024-01-02,22:00:09,190.25,191.1,189.7,190.9,812345\r\n"))
	})

	price, err := c.FetchLatest(context.Background(), "GLD")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if price != 190.25 {
		t.Fatalf("expected 190.25, got %v", price)
	}
}

func TestParseQuoteFailures(t *testing.T) {
	cases := map[string]string{
		"header only":  "Symbol,Date,Time,Open\n",
		"short row":    "Symbol,Date,Time,Open\nGLD.US,2024-01-02\n",
		"not a number": "Symbol,Date,Time,Open\nXYZ.US,N/D,N/D,N/D\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseQuote("XYZ", []byte(body))
			var pe *models.ProviderError
			if !errors.As(err, &pe) || pe.Code != models.ProviderParse {
				t.Fatalf("expected parse error, got %v", err)
			}
		})
	}
}

func TestFetchHistory(t *testing.T) {
	body := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-02,100,101,99,100.5,10\n" +
		"2024-01-03,100,101,99,101.5,10\n" +
		"2024-01-04,100,101,99,102.5,10\n"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/q/d/l/" || r.URL.Query().Get("s") != "tlt.us" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(body))
	})

	s, err := c.FetchHistory(context.Background(), "TLT", 2)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected lookback trimmed to 2 points, got %d", s.Len())
	}
	if s.Points[1].Close != 102.5 {
		t.Fatalf("unexpected last close %v", s.Points[1].Close)
	}
}

func TestFetchHistoryNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("No data"))
	})
	_, err := c.FetchHistory(context.Background(), "ZZZ", 220)
	var pe *models.ProviderError
	if !errors.As(err, &pe) || pe.Code != models.ProviderEmpty {
		t.Fatalf("expected empty error, got %v", err)
	}
}
