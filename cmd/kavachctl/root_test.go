package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Kavach/internal/di"
	"Kavach/internal/domain/models"
	"Kavach/internal/services/regime"
	"Kavach/internal/usecase"
	"Kavach/pkg/config"
	applogger "Kavach/pkg/logger"
	"Kavach/pkg/metrics"
)

type cliMarket struct{}

func (cliMarket) LatestPrice(_ context.Context, ticker string) (float64, error) {
	if ticker == "GLD" {
		return 180.5, nil
	}
	return 0, errors.New("yahoo error: down")
}

func (cliMarket) History(_ context.Context, ticker string) (models.PriceSeries, error) {
	return models.PriceSeries{}, errors.New("stooq error: down")
}

func (m cliMarket) LatestPrices(ctx context.Context, tickers []string) models.LatestPrices {
	out := models.LatestPrices{Timestamp: time.Now().UTC(), Prices: map[string]*float64{}, Errors: map[string]string{}}
	for _, t := range tickers {
		if p, err := m.LatestPrice(ctx, t); err == nil {
			out.Prices[t] = models.Float(p)
		} else {
			out.Prices[t] = nil
			out.Errors[t] = err.Error()
		}
	}
	return out
}

func fakeToolkit(cfg *config.Config) (*di.Toolkit, error) {
	l := applogger.Nop()
	return &di.Toolkit{
		Logger: l,
		Prices: usecase.NewPriceUseCase(cliMarket{}, metrics.Nop{}),
		Regime: usecase.NewRegimeUseCase(cliMarket{}, regime.NewDetector(), nil, nil, metrics.Nop{}, l,
			cfg.Regime.RiskyTicker, cfg.Regime.SafeTicker),
	}, nil
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(context.Background(), &out, fakeToolkit)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.Bytes()
}

func TestPricesCommand(t *testing.T) {
	var got models.LatestPrices
	if err := json.Unmarshal(run(t, "prices", "gld, xyz"), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p := got.Prices["GLD"]; p == nil || *p != 180.5 {
		t.Fatalf("GLD = %v", p)
	}
	if got.Prices["XYZ"] != nil || got.Errors["XYZ"] == "" {
		t.Fatalf("expected XYZ failure, got %+v", got)
	}
}

func TestRegimeCommandUsesConfigDefaults(t *testing.T) {
	var a models.RegimeAssessment
	if err := json.Unmarshal(run(t, "regime"), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.DetectedBy != models.DetectedByFallback || a.RiskyTicker != "BTC-USD" || a.SafeTicker != "GLD" {
		t.Fatalf("unexpected assessment %+v", a)
	}

	if err := json.Unmarshal(run(t, "regime", "--risky", "eth-usd"), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.RiskyTicker != "ETH-USD" {
		t.Fatalf("risky flag ignored: %+v", a)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	cmd := newRootCmd(context.Background(), &bytes.Buffer{}, fakeToolkit)
	cmd.SetArgs([]string{"deploy"})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
