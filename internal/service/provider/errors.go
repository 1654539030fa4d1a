// Package provider holds helpers shared by the market-data adapters.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"Kavach/internal/domain/models"
	xhttp "Kavach/pkg/http"
)

// Wrap classifies a transport-level error from pkg/http into a
// *models.ProviderError.
func Wrap(name, ticker string, err error) error {
	if err == nil {
		return nil
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var (
		se  *xhttp.StatusError
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &se):
		return models.NewProviderError(name, ticker, models.ProviderStatus, err)
	case errors.Is(err, xhttp.ErrEmptyBody):
		return models.NewProviderError(name, ticker, models.ProviderEmpty, err)
	case errors.As(err, &syn), errors.As(err, &typ):
		return models.NewProviderError(name, ticker, models.ProviderParse, err)
	default:
		return models.NewProviderError(name, ticker, models.ProviderTransport, err)
	}
}

// Empty reports a successful call that returned no usable data.
func Empty(name, ticker string) error {
	return models.NewProviderError(name, ticker, models.ProviderEmpty, fmt.Errorf("no data for %s", ticker))
}

// Parse reports a payload that did not match the expected schema.
func Parse(name, ticker, format string, args ...interface{}) error {
	return models.NewProviderError(name, ticker, models.ProviderParse, fmt.Errorf(format, args...))
}

// Unsupported reports a ticker the provider cannot serve.
func Unsupported(name, ticker string) error {
	return models.NewProviderError(name, ticker, models.ProviderUnsupported, fmt.Errorf("%s is not supported", ticker))
}
