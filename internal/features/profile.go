package features

import (
	"fmt"
	"strings"

	"ni225-oracle/internal/domain"
)

// Profile fixes the variant of the primary group, the columns each group
// contributes and the ordered ModelInput schema the classifiers were trained on.
type Profile struct {
	Name              string
	PrimaryVariant    domain.Variant
	PrimaryColumns    []string
	ComparisonColumns []string
	SideColumns       []string
	// Input is a literal schema. Nil means every merged column, in merge order.
	Input []string
}

const (
	ProfileOpenKnown = "open-known"
	ProfileFull      = "full"
)

var comparisonColumns = []string{
	ColOpenCloseDiffRatio, ColCloseCloseDiffRatio, ColCloseOpenDiffRatio,
	ColRSI, ColMACDHistogram, ColOpenDiffRatioByWeek, ColOpenDiffRatioByMonth,
}

var sideColumns = []string{ColOpenPrev, ColOpenCloseDiffRatio, ColCloseCloseDiffRatio}

// OpenKnownProfile is used once the primary index has opened: today's open is
// known and the reduced schema leans on it.
func OpenKnownProfile() Profile {
	return Profile{
		Name:           ProfileOpenKnown,
		PrimaryVariant: domain.VariantOpenKnown,
		PrimaryColumns: []string{
			ColOpen, ColClosePrev, ColOpenCloseDiffRatio, ColCloseCloseDiffRatio, ColCloseOpenDiffRatio,
			ColRSI, ColMACDHistogram, ColOpenDiffRatioByWeek, ColOpenDiffRatioByMonth,
		},
		ComparisonColumns: comparisonColumns,
		SideColumns:       sideColumns,
		Input: []string{
			"Open_Close_diff_ratio", "Close_Open_diff_ratio", "Open_diff_ratio_ByWeek",
			"GSPC_Close_Close_diff_ratio", "GSPC_Open_diff_ratio_ByWeek", "GSPC_Open_diff_ratio_ByMonth",
			"DJI_Close_Open_diff_ratio", "DJI_Open_diff_ratio_ByWeek", "DJI_Open_diff_ratio_ByMonth",
			"RUT_Open_diff_ratio_ByWeek",
			"GDAXI_Close_Open_diff_ratio", "GDAXI_Open_diff_ratio_ByMonth",
			"KS11_Close_Open_diff_ratio", "KS11_RSI",
			"VIX_Open_prev", "VIX_Open_Close_diff_ratio",
			"TNX_Open_prev", "TNX_Close_Close_diff_ratio",
			"TYX_Open_prev",
		},
	}
}

// UsesManualOpen reports whether a manual open changes this profile's input.
func (p Profile) UsesManualOpen() bool {
	return p.PrimaryVariant == domain.VariantOpenKnown
}

// FullProfile treats the primary index like every comparison index and feeds
// all merged columns to the classifiers.
func FullProfile() Profile {
	return Profile{
		Name:              ProfileFull,
		PrimaryVariant:    domain.VariantNotOpen,
		PrimaryColumns:    comparisonColumns,
		ComparisonColumns: comparisonColumns,
		SideColumns:       sideColumns,
	}
}

func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileOpenKnown:
		return OpenKnownProfile(), nil
	case ProfileFull:
		return FullProfile(), nil
	default:
		return Profile{}, fmt.Errorf("unknown profile %q (want %s or %s)", name, ProfileOpenKnown, ProfileFull)
	}
}

// Group is a set of tickers built with one variant and one column list.
type Group struct {
	Name    string
	Variant domain.Variant
	Tickers []Ticker
	Columns []string
}

// NewGroup rejects columns the variant cannot produce.
func NewGroup(name string, variant domain.Variant, tickers []Ticker, columns []string) (Group, error) {
	if err := ValidateColumns(variant, columns); err != nil {
		return Group{}, fmt.Errorf("group %s: %w", name, err)
	}
	return Group{Name: name, Variant: variant, Tickers: tickers, Columns: columns}, nil
}

// Groups lays the universe out in merge order: primary, comparisons, side.
func (p Profile) Groups(u Universe) ([]Group, error) {
	primary, err := NewGroup("primary", p.PrimaryVariant, []Ticker{u.Primary}, p.PrimaryColumns)
	if err != nil {
		return nil, err
	}
	comparisons, err := NewGroup("comparison", domain.VariantNotOpen, u.Comparisons, p.ComparisonColumns)
	if err != nil {
		return nil, err
	}
	side, err := NewGroup("side", domain.VariantSide, u.Side, p.SideColumns)
	if err != nil {
		return nil, err
	}
	return []Group{primary, comparisons, side}, nil
}

// InputColumns is the ordered ModelInput schema for u.
func (p Profile) InputColumns(u Universe) []string {
	if p.Input != nil {
		return append([]string(nil), p.Input...)
	}
	var out []string
	for _, col := range p.PrimaryColumns {
		out = append(out, NormalizeColumn(u.Primary.Symbol+"_"+col, u.Primary.Symbol))
	}
	for _, t := range u.Comparisons {
		for _, col := range p.ComparisonColumns {
			out = append(out, NormalizeColumn(t.Symbol+"_"+col, u.Primary.Symbol))
		}
	}
	for _, t := range u.Side {
		for _, col := range p.SideColumns {
			out = append(out, NormalizeColumn(t.Symbol+"_"+col, u.Primary.Symbol))
		}
	}
	return out
}

// NormalizeColumn drops the primary ticker's prefix and any leading caret,
// so "^N225_RSI" becomes "RSI" and "^GSPC_RSI" becomes "GSPC_RSI".
func NormalizeColumn(name, primarySymbol string) string {
	name = strings.Replace(name, primarySymbol+"_", "", 1)
	return strings.TrimLeft(name, "^")
}
