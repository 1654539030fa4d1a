package clickhouse

import (
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "kavach",
		User:         "default",
		DialTimeout:  5 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	}
	want := "clickhouse://default:@ch:9000/kavach?dial_timeout=5s&async_insert=1&wait_for_async_insert=1"
	if got := buildDSN(cfg); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}

	cfg = ClientConfig{Host: "ch", Port: 8123, Database: "kavach", User: "u", Password: "p", UseHTTP: true}
	if got := buildDSN(cfg); got != "http://u:p@ch:8123/kavach" {
		t.Fatalf("unexpected http dsn %q", got)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
