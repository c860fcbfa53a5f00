package features

import (
	"fmt"
	"strings"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/ta"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	weekLag    = 5
	monthLag   = 20
)

// Column names a variant can produce, before the ticker prefix is added.
const (
	ColOpen                 = "Open"
	ColClose                = "Close"
	ColVolume               = "Volume"
	ColOpenPrev             = "Open_prev"
	ColClosePrev            = "Close_prev"
	ColVolumePrev           = "Volume_prev"
	ColOpenCloseDiffRatio   = "Open_Close_diff_ratio"
	ColCloseCloseDiffRatio  = "Close_Close_diff_ratio"
	ColCloseOpenDiffRatio   = "Close_Open_diff_ratio"
	ColOpenDiffRatioByWeek  = "Open_diff_ratio_ByWeek"
	ColOpenDiffRatioByMonth = "Open_diff_ratio_ByMonth"
	ColVolumeDiffRatio      = "Volume_diff_ratio"
	ColRSI                  = "RSI"
	ColMACDLine             = "MACD Line"
	ColSignalLine           = "Signal Line"
	ColMACDHistogram        = "MACD Histogram"
)

var variantColumns = map[domain.Variant][]string{
	domain.VariantOpenKnown: {
		ColOpen, ColClose, ColVolume, ColClosePrev,
		ColOpenCloseDiffRatio, ColCloseCloseDiffRatio, ColCloseOpenDiffRatio,
		ColOpenDiffRatioByWeek, ColOpenDiffRatioByMonth,
		ColRSI, ColMACDLine, ColSignalLine, ColMACDHistogram,
	},
	domain.VariantNotOpen: {
		ColOpen, ColClose, ColVolume, ColClosePrev,
		ColOpenCloseDiffRatio, ColCloseCloseDiffRatio, ColCloseOpenDiffRatio,
		ColOpenDiffRatioByWeek, ColOpenDiffRatioByMonth,
		ColVolumePrev, ColVolumeDiffRatio,
		ColRSI, ColMACDLine, ColSignalLine, ColMACDHistogram,
	},
	domain.VariantSide: {
		ColOpen, ColClose, ColVolume, ColOpenPrev,
		ColOpenCloseDiffRatio, ColCloseCloseDiffRatio, ColCloseOpenDiffRatio,
	},
}

// UnknownFeatureError names a requested column the variant cannot produce.
type UnknownFeatureError struct {
	Variant domain.Variant
	Column  string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("variant %s has no feature %q (available: %s)",
		e.Variant, e.Column, strings.Join(variantColumns[e.Variant], ", "))
}

// VariantColumns lists every column variant derives, in derivation order.
func VariantColumns(variant domain.Variant) []string {
	return append([]string(nil), variantColumns[variant]...)
}

// ValidateColumns checks every requested column exists for variant.
func ValidateColumns(variant domain.Variant, columns []string) error {
	known, ok := variantColumns[variant]
	if !ok {
		return fmt.Errorf("unknown variant %q", variant)
	}
	for _, col := range columns {
		found := false
		for _, k := range known {
			if k == col {
				found = true
				break
			}
		}
		if !found {
			return &UnknownFeatureError{Variant: variant, Column: col}
		}
	}
	return nil
}

// derive computes every column of variant over bars. Row i of each column
// belongs to bars[i].
func derive(variant domain.Variant, bars []domain.PriceBar) (map[string][]float64, error) {
	open := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	volume := make([]float64, len(bars))
	for i, b := range bars {
		open[i], closes[i], volume[i] = b.Open, b.Close, b.Volume
	}
	cols := map[string][]float64{ColOpen: open, ColClose: closes, ColVolume: volume}

	close1 := ta.Shift(closes, 1)
	close2 := ta.Shift(closes, 2)
	open1 := ta.Shift(open, 1)
	open5 := ta.Shift(open, weekLag)
	open20 := ta.Shift(open, monthLag)

	// Close-to-open of the previous session is shared by every variant.
	cols[ColCloseCloseDiffRatio] = ta.PctDiff(close1, close2)
	cols[ColCloseOpenDiffRatio] = ta.PctDiff(close1, open1)

	switch variant {
	case domain.VariantOpenKnown:
		cols[ColClosePrev] = close1
		cols[ColOpenCloseDiffRatio] = ta.PctDiff(open, close1)
		cols[ColOpenDiffRatioByWeek] = ta.PctDiff(open, open5)
		cols[ColOpenDiffRatioByMonth] = ta.PctDiff(open, open20)
		addMomentum(cols, closes)
	case domain.VariantNotOpen:
		cols[ColClosePrev] = close1
		cols[ColOpenCloseDiffRatio] = ta.PctDiff(open1, close2)
		cols[ColOpenDiffRatioByWeek] = ta.PctDiff(close1, open5)
		cols[ColOpenDiffRatioByMonth] = ta.PctDiff(close1, open20)
		cols[ColVolumePrev] = ta.Shift(volume, 1)
		cols[ColVolumeDiffRatio] = ta.PctDiff(ta.Shift(volume, 1), ta.Shift(volume, 2))
		addMomentum(cols, open)
	case domain.VariantSide:
		cols[ColOpenPrev] = open1
		cols[ColOpenCloseDiffRatio] = ta.PctDiff(open1, close2)
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
	return cols, nil
}

// addMomentum adds RSI and MACD over source, lagged one session so today's
// row only sees yesterday's oscillator values.
func addMomentum(cols map[string][]float64, source []float64) {
	cols[ColRSI] = ta.Shift(ta.RSISeries(source, rsiPeriod), 1)
	line, signal, hist := ta.MACDSeries(source, macdFast, macdSlow, macdSignal)
	cols[ColMACDLine] = ta.Shift(line, 1)
	cols[ColSignalLine] = ta.Shift(signal, 1)
	cols[ColMACDHistogram] = ta.Shift(hist, 1)
}
