package models

import (
	"math"
	"sort"
	"time"
)

// AssetClass decides which provider chain serves a ticker.
type AssetClass string

const (
	AssetClassCrypto      AssetClass = "crypto"
	AssetClassTraditional AssetClass = "traditional"
)

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is an ordered run of daily closes for one ticker.
// Dates are strictly increasing and every close is positive.
type PriceSeries struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries normalises raw points: it drops non-positive or non-finite
// closes, sorts by date and keeps the last point seen for each date.
func NewPriceSeries(ticker string, raw []PricePoint) PriceSeries {
	pts := make([]PricePoint, 0, len(raw))
	for _, p := range raw {
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		pts = append(pts, p)
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return PriceSeries{Ticker: ticker, Points: out}
}

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.Points) }

// Empty reports whether the series has no observations.
func (s PriceSeries) Empty() bool { return len(s.Points) == 0 }

// Closes returns the close values in date order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Last returns the most recent observation.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// LatestPrices is the batch latest-price result. A nil price means every
// provider failed for that ticker; the reason is then present in Errors.
type LatestPrices struct {
	Timestamp time.Time           `json:"timestamp"`
	Prices    map[string]*float64 `json:"prices"`
	Errors    map[string]string   `json:"errors,omitempty"`
}

// PriceOrZero returns the fetched price or 0 when the fetch failed.
func (l LatestPrices) PriceOrZero(ticker string) float64 {
	if p := l.Prices[ticker]; p != nil {
		return *p
	}
	return 0
}
