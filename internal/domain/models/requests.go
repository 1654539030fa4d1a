package models

// Requests for the HTTP surface. Binding and validation happen in the handler.

type PricesRequest struct {
	Tickers string `query:"tickers" json:"tickers"`
}

type RegimeRequest struct {
	Risky string `query:"risky" json:"risky" validate:"omitempty,ticker"`
	Safe  string `query:"safe" json:"safe" validate:"omitempty,ticker"`
}

type CreatePortfolioRequest struct {
	ID      string   `json:"id" validate:"required,resource_id"`
	Balance *float64 `json:"balance" validate:"omitempty,gte=0"`
}

type PortfolioIDRequest struct {
	ID string `param:"id" validate:"required,resource_id"`
}

type DeployRequest struct {
	ID     string `param:"id" validate:"required,resource_id"`
	Regime string `json:"regime" validate:"omitempty,oneof=bull volatile crash"`
}

type RebalanceRequest struct {
	ID     string `param:"id" validate:"required,resource_id"`
	Regime string `json:"regime" validate:"required,oneof=bull volatile crash"`
}

type HistoryRequest struct {
	ID    string `param:"id" validate:"required,resource_id"`
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

type RegimeHistoryRequest struct {
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=500"`
}
