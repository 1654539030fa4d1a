package yahoo

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

const chartBody = `{"chart":{"result":[{"timestamp":[1704067200,1704153600,1704240000],
"indicators":{"quote":[{"close":[100.5,null,102.25]}]}}],"error":null}}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	now := func() time.Time { return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) }
	return New(xhttp.NewClient(xhttp.WithTimeout(5*time.Second)), WithBaseURL(srv.URL), WithClock(now))
}

func TestFetchLatestSkipsNullCloses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/GLD" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "5d" {
			t.Errorf("unexpected range %q", r.URL.Query().Get("range"))
		}
		_, _ = w.Write([]byte(chartBody))
	})

	price, err := c.FetchLatest(context.Background(), "GLD")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if price != 102.25 {
		t.Fatalf("expected 102.25, got %v", price)
	}
}

func TestFetchHistoryBuildsDailySeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period1") == "" || r.URL.Query().Get("period2") == "" {
			t.Errorf("expected period bounds, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(chartBody))
	})

	s, err := c.FetchHistory(context.Background(), "BTC-USD", 220)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", s.Len())
	}
	if s.Points[0].Date.Format("2006-01-02") != "2024-01-01" {
		t.Fatalf("unexpected first date %v", s.Points[0].Date)
	}
}

func TestChartErrorsAreTyped(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
		code models.ProviderErrorCode
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found"}}}`))
		}, models.ProviderStatus},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}, models.ProviderEmpty},
		{"no results", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
		}, models.ProviderEmpty},
		{"all nulls", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":[{"timestamp":[1],"indicators":{"quote":[{"close":[null]}]}}]}}`))
		}, models.ProviderEmpty},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, models.ProviderParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.h)
			_, err := c.FetchLatest(context.Background(), "TLT")
			var pe *models.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if pe.Code != tc.code || pe.Provider != Name {
				t.Fatalf("unexpected error %+v", pe)
			}
		})
	}
}
