package util

import (
	"reflect"
	"testing"
)

func TestParseTickers(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty uses defaults", "", DefaultTickers},
		{"blank entries uses defaults", " , ,", DefaultTickers},
		{"trims and upper-cases", " btc-usd, gld ", []string{"BTC-USD", "GLD"}},
		{"drops duplicates", "GLD,gld,TLT", []string{"GLD", "TLT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTickers(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTickers(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseTickersReturnsCopyOfDefaults(t *testing.T) {
	got := ParseTickers("")
	got[0] = "XXX"
	if DefaultTickers[0] != "BTC-USD" {
		t.Fatalf("defaults mutated: %v", DefaultTickers)
	}
}

func TestParseIntDefault(t *testing.T) {
	if ParseIntDefault("", 7) != 7 || ParseIntDefault("x", 7) != 7 || ParseIntDefault("12", 7) != 12 {
		t.Fatalf("unexpected ParseIntDefault behaviour")
	}
}
