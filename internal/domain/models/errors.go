package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyDeployed     = errors.New("portfolio already deployed")
	ErrNotDeployed         = errors.New("portfolio not deployed yet")
	ErrNoCapital           = errors.New("no capital to deploy")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrPortfolioNotFound   = errors.New("portfolio not found")
	ErrPortfolioExists     = errors.New("portfolio already exists")
	ErrPortfolioBusy       = errors.New("portfolio is locked by another operation")
)

// ProviderErrorCode classifies a single provider failure.
type ProviderErrorCode string

const (
	ProviderTransport   ProviderErrorCode = "transport"
	ProviderStatus      ProviderErrorCode = "status"
	ProviderEmpty       ProviderErrorCode = "empty"
	ProviderParse       ProviderErrorCode = "parse"
	ProviderUnsupported ProviderErrorCode = "unsupported"
	ProviderUnavailable ProviderErrorCode = "unavailable"
)

// ProviderError is a typed failure from one provider call.
type ProviderError struct {
	Provider string
	Ticker   string
	Code     ProviderErrorCode
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError.
func NewProviderError(provider, ticker string, code ProviderErrorCode, err error) *ProviderError {
	return &ProviderError{Provider: provider, Ticker: ticker, Code: code, Err: err}
}

// ExhaustedError means every provider in a chain failed for a ticker.
type ExhaustedError struct {
	Ticker string
	Errors []error
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, " | ")
}

func (e *ExhaustedError) Unwrap() []error { return e.Errors }

// ErrHistoryUnavailable means no queryable decision store is configured.
var ErrHistoryUnavailable = errors.New("decision history not available")
