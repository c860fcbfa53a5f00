package features

import (
	"context"
	"errors"
	"math"
	"testing"

	"ni225-oracle/internal/domain"
)

func universeHistory(u Universe, stale map[string]bool) *fakeHistory {
	h := &fakeHistory{bars: map[string][]domain.PriceBar{}}
	for i, t := range u.Tickers() {
		last := testToday
		if stale[t.Symbol] {
			last = testToday.AddDate(0, 0, -1)
		}
		h.bars[t.Symbol] = makeBars(last, 60, 100*float64(i+1))
	}
	return h
}

func TestAssembleOpenKnownProfile(t *testing.T) {
	u := DefaultUniverse()
	history := universeHistory(u, nil)
	quotes := newFakeQuotes()
	assembler := NewAssembler(newTestBuilder(history, quotes), u, testTracer)

	panel, err := assembler.Assemble(context.Background(), OpenKnownProfile(), nil, newTestCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quotes.total() != 0 {
		t.Fatalf("expected no scrapes with fresh history, got %d", quotes.total())
	}
	if len(history.calls) != 11 {
		t.Fatalf("expected one history call per ticker, got %d", len(history.calls))
	}

	cols := panel.Input.Columns()
	want := OpenKnownProfile().Input
	if len(cols) != len(want) || len(cols) != 19 {
		t.Fatalf("expected 19 input columns, got %d", len(cols))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("column %d: expected %s, got %s", i, want[i], cols[i])
		}
	}
	if panel.Input.Len() != InputRows {
		t.Fatalf("expected %d input rows, got %d", InputRows, panel.Input.Len())
	}
	if !panel.Input.Index()[InputRows-1].Equal(testToday) {
		t.Fatalf("expected last input row dated today")
	}
	for i, v := range panel.Input.Row(InputRows - 1) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("expected complete last row, column %s is %v", cols[i], v)
		}
	}
	if _, ok := panel.Merged.Column("Open"); !ok {
		t.Fatalf("expected primary prefix stripped in merged panel, got %v", panel.Merged.Columns())
	}
	if _, ok := panel.Merged.Column("GSPC_RSI"); !ok {
		t.Fatalf("expected caret stripped from comparison columns, got %v", panel.Merged.Columns())
	}
}

func TestAssembleManualOpenOnlyTouchesPrimary(t *testing.T) {
	u := DefaultUniverse()
	profile := OpenKnownProfile()

	base, err := NewAssembler(newTestBuilder(universeHistory(u, nil), newFakeQuotes()), u, testTracer).
		Assemble(context.Background(), profile, nil, newTestCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manual := 30000.0
	overridden, err := NewAssembler(newTestBuilder(universeHistory(u, nil), newFakeQuotes()), u, testTracer).
		Assemble(context.Background(), profile, &manual, newTestCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := overridden.Merged.Len() - 1
	prevClose := overridden.Merged.Value(last, "Close_prev")
	if got := overridden.Merged.Value(last, "Open_Close_diff_ratio"); !approx(got, 100*(30000-prevClose)/prevClose) {
		t.Fatalf("expected ratio from manual open, got %.6f", got)
	}
	for _, col := range base.Merged.Columns() {
		if col == "Open" || col == "Open_Close_diff_ratio" || col == "Open_diff_ratio_ByWeek" || col == "Open_diff_ratio_ByMonth" {
			continue
		}
		if a, b := base.Merged.Value(last, col), overridden.Merged.Value(last, col); a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
			t.Fatalf("column %s changed: %.6f vs %.6f", col, a, b)
		}
	}
}

func TestAssembleStaleTickerScrapesOnce(t *testing.T) {
	u := DefaultUniverse()
	history := universeHistory(u, map[string]bool{"^VIX": true})
	quotes := newFakeQuotes()
	// no quote configured for VIX: the scrape yields a missing open

	panel, err := NewAssembler(newTestBuilder(history, quotes), u, testTracer).
		Assemble(context.Background(), OpenKnownProfile(), nil, newTestCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quotes.total() != 1 {
		t.Fatalf("expected one scrape for the stale ticker, got %d", quotes.total())
	}
	last := panel.Merged.Len() - 1
	if got := panel.Merged.Value(last, "VIX_Open_prev"); math.IsNaN(got) {
		t.Fatal("expected VIX_Open_prev to be present for today")
	}
}

func TestAssembleFullProfile(t *testing.T) {
	u := DefaultUniverse()
	panel, err := NewAssembler(newTestBuilder(universeHistory(u, nil), newFakeQuotes()), u, testTracer).
		Assemble(context.Background(), FullProfile(), nil, newTestCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cols := panel.Input.Columns()
	if len(cols) != 65 {
		t.Fatalf("expected 65 input columns, got %d", len(cols))
	}
	if cols[0] != "Open_Close_diff_ratio" || cols[7] != "GSPC_Open_Close_diff_ratio" || cols[64] != "TYX_Close_Close_diff_ratio" {
		t.Fatalf("unexpected column layout: %s, %s, %s", cols[0], cols[7], cols[64])
	}
}

func TestAssembleMissingSchemaColumn(t *testing.T) {
	u := DefaultUniverse()
	u.Comparisons = u.Comparisons[1:] // drop ^GSPC
	_, err := NewAssembler(newTestBuilder(universeHistory(u, nil), newFakeQuotes()), u, testTracer).
		Assemble(context.Background(), OpenKnownProfile(), nil, newTestCollector())
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing column error, got %v", err)
	}
	if len(missing.Columns) != 3 || missing.Columns[0] != "GSPC_Close_Close_diff_ratio" {
		t.Fatalf("unexpected missing columns %v", missing.Columns)
	}
}

func TestProfileByName(t *testing.T) {
	if p, err := ProfileByName(""); err != nil || p.Name != ProfileOpenKnown {
		t.Fatalf("expected default profile, got %v %v", p.Name, err)
	}
	if p, err := ProfileByName("FULL"); err != nil || p.Name != ProfileFull {
		t.Fatalf("expected full profile, got %v %v", p.Name, err)
	}
	if _, err := ProfileByName("weekly"); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestNewGroupRejectsUnknownColumn(t *testing.T) {
	_, err := NewGroup("side", domain.VariantSide, nil, []string{ColMACDHistogram})
	var unknown *UnknownFeatureError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown feature error, got %v", err)
	}
}

func TestNormalizeColumn(t *testing.T) {
	cases := map[string]string{
		"^N225_MACD Histogram": "MACD Histogram",
		"^GSPC_RSI":            "GSPC_RSI",
		"^VIX_Open_prev":       "VIX_Open_prev",
	}
	for in, want := range cases {
		if got := NormalizeColumn(in, "^N225"); got != want {
			t.Fatalf("NormalizeColumn(%q) = %q, want %q", in, got, want)
		}
	}
}
