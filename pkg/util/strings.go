package util

import (
	"strconv"
	"strings"
)

// DefaultTickers is the watch list used when a caller passes no tickers.
var DefaultTickers = []string{"BTC-USD", "ETH-USD", "GLD", "TLT"}

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseTickers splits a comma-separated list, trims and upper-cases each
// entry and drops blanks. An empty result falls back to DefaultTickers.
func ParseTickers(raw string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		t := strings.ToUpper(strings.TrimSpace(part))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultTickers...)
	}
	return out
}
