package domain

import (
	"math"
	"time"
)

// PrimarySymbol is the index the signal is computed for.
const PrimarySymbol = "^N225"

// DateLayout is the civil-date layout used for row keys and reports.
const DateLayout = "2006-01-02"

// PriceBar is one ticker's daily observation. Missing values are NaN.
type PriceBar struct {
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// TickerSeries is an ordered, unique-date run of bars for one ticker.
type TickerSeries struct {
	Symbol string
	Bars   []PriceBar
}

// Quote is the single-row snapshot a scrape page yields for today.
type Quote struct {
	Open  float64
	Close float64
}

// MissingQuote returns a quote with every field missing.
func MissingQuote() Quote {
	return Quote{Open: math.NaN(), Close: math.NaN()}
}

// DateOf truncates t to its civil date in loc and returns it as midnight UTC,
// which is the canonical row key across all frames.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Variant selects which feature formulas a ticker group uses.
type Variant string

const (
	// VariantOpenKnown uses today's Open against yesterday's prices.
	VariantOpenKnown Variant = "open_known"
	// VariantNotOpen only uses values from yesterday or earlier.
	VariantNotOpen Variant = "not_open"
	// VariantSide is the minimal set used for volatility and rate series.
	VariantSide Variant = "side"
)

// Signal is the ensemble output for one date.
type Signal float64

const (
	SignalStrongSell Signal = -1
	SignalSell       Signal = -0.5
	SignalNoAction   Signal = 0
	SignalBuy        Signal = 0.5
	SignalStrongBuy  Signal = 1
)

// IsValid reports whether s is one of the five permitted values.
func (s Signal) IsValid() bool {
	switch s {
	case SignalStrongSell, SignalSell, SignalNoAction, SignalBuy, SignalStrongBuy:
		return true
	default:
		return false
	}
}

// Action is the human-readable decision for a signal.
func (s Signal) Action() string {
	switch s {
	case SignalStrongBuy:
		return "Strong Buy"
	case SignalBuy:
		return "Buy"
	case SignalSell:
		return "Sell"
	case SignalStrongSell:
		return "Strong Sell"
	default:
		return "No Action"
	}
}

// PredictionRow is the ensemble result for one ModelInput date.
type PredictionRow struct {
	Date       time.Time `json:"date"`
	Direction  float64   `json:"direction"`
	Confidence float64   `json:"confidence"`
	Signal     Signal    `json:"signal"`
}

// SignalRun is a persisted pipeline run.
type SignalRun struct {
	RunID       string         `json:"run_id"`
	Profile     string         `json:"profile"`
	RunAt       time.Time      `json:"run_at"`
	SignalDate  time.Time      `json:"signal_date"`
	Signal      Signal         `json:"signal"`
	Action      string         `json:"action"`
	ManualOpen  *float64       `json:"manual_open,omitempty"`
	Diagnostics []string       `json:"diagnostics"`
	Rows        []SignalRunRow `json:"rows,omitempty"`
}

// SignalRunRow is one audit row: every merged feature plus the prediction.
type SignalRunRow struct {
	Date       time.Time          `json:"date"`
	Features   map[string]float64 `json:"features"`
	Prediction *float64           `json:"prediction,omitempty"`
}
