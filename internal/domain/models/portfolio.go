package models

import "time"

// HoldingClass groups holdings by risk bucket.
type HoldingClass string

const (
	HoldingRisky HoldingClass = "risky"
	HoldingSafe  HoldingClass = "safe"
	HoldingCash  HoldingClass = "cash"
)

// Holding is a position in one symbol. AvgPrice is the price basis at the
// last deploy or rebalance.
type Holding struct {
	Symbol      string       `json:"symbol"`
	Quantity    float64      `json:"quantity"`
	AvgPrice    float64      `json:"avg_price"`
	Class       HoldingClass `json:"class"`
	LastUpdated time.Time    `json:"last_updated"`
}

// Portfolio is the holdings snapshot the coordinator operates on.
type Portfolio struct {
	ID             string     `json:"id"`
	UninvestedCash float64    `json:"uninvested_cash"`
	Deployed       bool       `json:"deployed"`
	LastRegime     Regime     `json:"last_regime,omitempty"`
	Holdings       []*Holding `json:"holdings"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Holding returns the holding for symbol, or nil.
func (p *Portfolio) Holding(symbol string) *Holding {
	for _, h := range p.Holdings {
		if h.Symbol == symbol {
			return h
		}
	}
	return nil
}

// AllocationTarget maps a symbol to its target quantity in units.
// For the cash symbol the quantity is a dollar amount.
type AllocationTarget map[string]float64

// RebalanceAction names the coordinator operation that produced a record.
type RebalanceAction string

const (
	ActionDeploy    RebalanceAction = "deploy"
	ActionRebalance RebalanceAction = "rebalance"
)

// RebalanceRecord is the audit entry handed to the decision sink.
type RebalanceRecord struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Action      RebalanceAction `json:"action"`
	Regime      Regime          `json:"regime"`
	Reasoning   string          `json:"reasoning"`
	ValueBefore float64         `json:"value_before"`
	ValueAfter  float64         `json:"value_after"`
	Timestamp   time.Time       `json:"timestamp"`
}

// RebalanceOutcome is returned to callers of deploy and rebalance.
// Allocation holds dollar values per symbol rounded to cents.
type RebalanceOutcome struct {
	Regime         Regime             `json:"regime"`
	Allocation     map[string]float64 `json:"allocation"`
	Quantities     AllocationTarget   `json:"quantities"`
	PortfolioValue float64            `json:"portfolio_value"`
	Record         RebalanceRecord    `json:"record"`
}

// DecisionEvent is the envelope published to decision streams.
type DecisionEvent struct {
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Assessment *RegimeAssessment `json:"assessment,omitempty"`
	Record     *RebalanceRecord  `json:"record,omitempty"`
}

const (
	EventAssessment = "assessment"
	EventRebalance  = "rebalance"
)
