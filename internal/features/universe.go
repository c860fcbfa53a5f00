package features

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/provider"
)

// Ticker is one instrument: its bulk-history symbol and the page scraped
// when the bulk source has no bar for today.
type Ticker struct {
	Symbol string            `yaml:"symbol" json:"symbol" validate:"required"`
	URL    string            `yaml:"url" json:"url" validate:"required,url"`
	Page   provider.PageKind `yaml:"page,omitempty" json:"page,omitempty" validate:"omitempty,oneof=index_key_info quote_live instrument_last"`
}

// Universe is the full set of tickers a run touches, by group.
type Universe struct {
	Primary     Ticker   `yaml:"primary" json:"primary"`
	Comparisons []Ticker `yaml:"comparisons" json:"comparisons" validate:"dive"`
	Side        []Ticker `yaml:"side" json:"side" validate:"dive"`
}

func DefaultUniverse() Universe {
	return Universe{
		Primary: Ticker{Symbol: domain.PrimarySymbol, URL: "https://www.investing.com/indices/japan-ni225", Page: provider.PageIndexKeyInfo},
		Comparisons: []Ticker{
			{Symbol: "^GSPC", URL: "https://finance.yahoo.com/quote/%5EGSPC/", Page: provider.PageQuoteLive},
			{Symbol: "^DJI", URL: "https://finance.yahoo.com/quote/%5EDJI/", Page: provider.PageQuoteLive},
			{Symbol: "^IXIC", URL: "https://finance.yahoo.com/quote/%5EIXIC/", Page: provider.PageQuoteLive},
			{Symbol: "^RUT", URL: "https://finance.yahoo.com/quote/%5ERUT/", Page: provider.PageQuoteLive},
			{Symbol: "^GDAXI", URL: "https://finance.yahoo.com/quote/%5EGDAXI/", Page: provider.PageQuoteLive},
			{Symbol: "^HSI", URL: "https://finance.yahoo.com/quote/%5EHSI/", Page: provider.PageQuoteLive},
			{Symbol: "^KS11", URL: "https://finance.yahoo.com/quote/%5EKS11/", Page: provider.PageQuoteLive},
		},
		Side: []Ticker{
			{Symbol: "^VIX", URL: "https://www.investing.com/indices/volatility-s-p-500", Page: provider.PageInstrumentLast},
			{Symbol: "^TNX", URL: "https://www.investing.com/rates-bonds/u.s.-10-year-bond-yield", Page: provider.PageInstrumentLast},
			{Symbol: "^TYX", URL: "https://www.investing.com/rates-bonds/u.s.-30-year-bond-yield", Page: provider.PageInstrumentLast},
		},
	}
}

// Tickers lists every ticker in group order.
func (u Universe) Tickers() []Ticker {
	out := make([]Ticker, 0, 1+len(u.Comparisons)+len(u.Side))
	out = append(out, u.Primary)
	out = append(out, u.Comparisons...)
	return append(out, u.Side...)
}

// Validate checks struct tags and that no symbol appears twice.
func (u Universe) Validate() error {
	if err := validator.New().Struct(u); err != nil {
		return fmt.Errorf("invalid universe: %w", err)
	}
	seen := make(map[string]bool)
	for _, t := range u.Tickers() {
		if seen[t.Symbol] {
			return fmt.Errorf("invalid universe: duplicate symbol %s", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	return nil
}

// LoadUniverse decodes a YAML universe. Omitted groups keep the defaults and
// omitted page kinds are filled from the group.
func LoadUniverse(r io.Reader) (Universe, error) {
	u := DefaultUniverse()
	var raw Universe
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return Universe{}, fmt.Errorf("decode universe: %w", err)
	}
	if raw.Primary.Symbol != "" {
		u.Primary = withPage(raw.Primary, provider.PageIndexKeyInfo)
	}
	if len(raw.Comparisons) > 0 {
		u.Comparisons = withPages(raw.Comparisons, provider.PageQuoteLive)
	}
	if len(raw.Side) > 0 {
		u.Side = withPages(raw.Side, provider.PageInstrumentLast)
	}
	if err := u.Validate(); err != nil {
		return Universe{}, err
	}
	return u, nil
}

// LoadUniverseFile reads path, or returns the defaults when path is empty.
func LoadUniverseFile(path string) (Universe, error) {
	if path == "" {
		return DefaultUniverse(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Universe{}, fmt.Errorf("open universe file: %w", err)
	}
	defer f.Close()
	return LoadUniverse(f)
}

func withPage(t Ticker, page provider.PageKind) Ticker {
	if t.Page == "" {
		t.Page = page
	}
	return t
}

func withPages(ts []Ticker, page provider.PageKind) []Ticker {
	out := make([]Ticker, len(ts))
	for i, t := range ts {
		out[i] = withPage(t, page)
	}
	return out
}
