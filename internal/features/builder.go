package features

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/diag"
	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/frame"
	"ni225-oracle/internal/provider"
)

// LookbackDays is the calendar window of history fetched per ticker.
const LookbackDays = 80

// HistorySource returns daily bars dated in [from, to).
type HistorySource interface {
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error)
}

// QuoteSource scrapes today's quote from a page.
type QuoteSource interface {
	Scrape(ctx context.Context, kind provider.PageKind, pageURL string) (domain.Quote, error)
}

// Builder turns one ticker's history into its prefixed feature columns.
type Builder struct {
	history HistorySource
	quotes  QuoteSource
	tracer  trace.Tracer
	loc     *time.Location
	now     func() time.Time
}

func NewBuilder(history HistorySource, quotes QuoteSource, tracer trace.Tracer, loc *time.Location, now func() time.Time) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{history: history, quotes: quotes, tracer: tracer, loc: loc, now: now}
}

// Today is the current civil date in the market timezone.
func (b *Builder) Today() time.Time {
	return domain.DateOf(b.now(), b.loc)
}

// BuildRequest selects one ticker's features.
type BuildRequest struct {
	Ticker  Ticker
	Variant domain.Variant
	Columns []string
	// ManualOpen replaces today's Open. Only the open-known variant uses it.
	ManualOpen *float64
}

// Build fetches the ticker's series and returns the requested columns named
// "<symbol>_<column>". Data problems are recorded in diags and leave NaN
// cells; only an unknown column is an error.
func (b *Builder) Build(ctx context.Context, req BuildRequest, diags *diag.Collector) (*frame.Frame, error) {
	ctx, span := b.tracer.Start(ctx, "features.build", trace.WithAttributes(
		attribute.String("symbol", req.Ticker.Symbol),
		attribute.String("variant", string(req.Variant)),
	))
	defer span.End()

	if err := ValidateColumns(req.Variant, req.Columns); err != nil {
		return nil, err
	}

	today := b.Today()
	series := b.series(ctx, req.Ticker, today, diags)
	if req.Variant == domain.VariantOpenKnown && req.ManualOpen != nil {
		series.Bars = applyManualOpen(series.Bars, today, *req.ManualOpen)
		diags.Addf(diag.Info, req.Ticker.Symbol, nil, "manual open %.2f applied to %s", *req.ManualOpen, today.Format(domain.DateLayout))
	}
	span.SetAttributes(attribute.Int("bars", len(series.Bars)))

	cols, err := derive(req.Variant, series.Bars)
	if err != nil {
		return nil, err
	}

	index := make([]time.Time, len(series.Bars))
	for i, bar := range series.Bars {
		index[i] = bar.Date
	}
	out, err := frame.New(index)
	if err != nil {
		return nil, err
	}
	for _, col := range req.Columns {
		if err := out.Set(req.Ticker.Symbol+"_"+col, cols[col]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Series returns the lookback window for t ending today. When the bulk source
// has no bar dated today, the ticker's page is scraped exactly once and a
// synthetic row for today is appended.
func (b *Builder) Series(ctx context.Context, t Ticker, diags *diag.Collector) domain.TickerSeries {
	return b.series(ctx, t, b.Today(), diags)
}

func (b *Builder) series(ctx context.Context, t Ticker, today time.Time, diags *diag.Collector) domain.TickerSeries {
	from := time.Date(today.Year(), today.Month(), today.Day()-LookbackDays, 0, 0, 0, 0, b.loc)
	to := time.Date(today.Year(), today.Month(), today.Day()+1, 0, 0, 0, 0, b.loc)

	bars, err := b.history.FetchDaily(ctx, t.Symbol, from, to)
	if err != nil {
		diags.Addf(diag.FetchFailed, t.Symbol, err, "history fetch failed")
		bars = nil
	}
	bars = normalizeBars(bars, today)

	if len(bars) > 0 && bars[len(bars)-1].Date.Equal(today) {
		return domain.TickerSeries{Symbol: t.Symbol, Bars: bars}
	}

	diags.Addf(diag.StaleData, t.Symbol, nil, "no bar for %s, scraping %s", today.Format(domain.DateLayout), t.URL)
	quote, err := b.quotes.Scrape(ctx, t.Page, t.URL)
	if err != nil {
		recordScrapeError(diags, t.Symbol, err)
	} else if math.IsNaN(quote.Open) {
		diags.Addf(diag.MissingValue, t.Symbol, nil, "scraped page has no open value")
	}
	bars = append(bars, domain.PriceBar{
		Date:      today,
		Open:      quote.Open,
		Close:     quote.Close,
		Volume:    math.NaN(),
		Synthetic: true,
	})
	return domain.TickerSeries{Symbol: t.Symbol, Bars: bars}
}

func recordScrapeError(diags *diag.Collector, symbol string, err error) {
	var parseErr *provider.ParseError
	var notFound *provider.ElementNotFoundError
	switch {
	case errors.As(err, &parseErr):
		diags.Addf(diag.ParseFailed, symbol, err, "scraped value is not numeric")
	case errors.As(err, &notFound):
		diags.Addf(diag.MissingValue, symbol, err, "scraped page is missing the open element")
	default:
		diags.Addf(diag.FetchFailed, symbol, err, "scrape failed")
	}
}

// normalizeBars sorts by date, keeps the last bar per date and drops bars
// dated after today.
func normalizeBars(bars []domain.PriceBar, today time.Time) []domain.PriceBar {
	sorted := make([]domain.PriceBar, 0, len(bars))
	for _, bar := range bars {
		if bar.Date.After(today) {
			continue
		}
		sorted = append(sorted, bar)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := sorted[:0]
	for _, bar := range sorted {
		if n := len(out); n > 0 && out[n-1].Date.Equal(bar.Date) {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

func applyManualOpen(bars []domain.PriceBar, today time.Time, open float64) []domain.PriceBar {
	out := append([]domain.PriceBar(nil), bars...)
	if n := len(out); n > 0 && out[n-1].Date.Equal(today) {
		out[n-1].Open = open
		return out
	}
	return append(out, domain.PriceBar{
		Date:      today,
		Open:      open,
		Close:     math.NaN(),
		Volume:    math.NaN(),
		Synthetic: true,
	})
}
