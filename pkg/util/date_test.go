package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDay(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-05", "2024-03-05T17:45:00Z"} {
		got, ok := ParseDay(in)
		if !ok {
			t.Fatalf("ParseDay(%q) failed", in)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDay(%q) = %v, want %v", in, got, want)
		}
	}
	if _, ok := ParseDay("yesterday"); ok {
		t.Fatalf("expected failure for garbage input")
	}
}

func TestDayFromUnixMillis(t *testing.T) {
	ms := time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC).UnixMilli()
	got := DayFromUnixMillis(ms)
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("unexpected day %s", got)
	}
}
