package features

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/diag"
	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/provider"
)

var (
	testTracer = trace.NewNoopTracerProvider().Tracer("test")
	tokyo      = time.FixedZone("JST", 9*3600)
	testNow    = time.Date(2026, 3, 4, 10, 30, 0, 0, tokyo)
	testToday  = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
)

type fakeHistory struct {
	mu    sync.Mutex
	bars  map[string][]domain.PriceBar
	errs  map[string]error
	calls []string
}

func (f *fakeHistory) FetchDaily(_ context.Context, symbol string, _, _ time.Time) ([]domain.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return append([]domain.PriceBar(nil), f.bars[symbol]...), nil
}

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	errs   map[string]error
	calls  map[string]int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{quotes: map[string]domain.Quote{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeQuotes) Scrape(_ context.Context, _ provider.PageKind, pageURL string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[pageURL]++
	q, ok := f.quotes[pageURL]
	if !ok {
		q = domain.MissingQuote()
	}
	return q, f.errs[pageURL]
}

func (f *fakeQuotes) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// makeBars returns n consecutive daily bars ending at last. Opens and closes
// rise by one per day from base.
func makeBars(last time.Time, n int, base float64) []domain.PriceBar {
	out := make([]domain.PriceBar, n)
	for i := 0; i < n; i++ {
		p := base + float64(i)
		out[i] = domain.PriceBar{
			Date:   last.AddDate(0, 0, i-n+1),
			Open:   p,
			Close:  p + 0.5,
			Volume: 1000 + float64(i),
		}
	}
	return out
}

func newTestBuilder(h HistorySource, q QuoteSource) *Builder {
	return NewBuilder(h, q, testTracer, tokyo, func() time.Time { return testNow })
}

func newTestCollector() *diag.Collector {
	return diag.NewCollector(zerolog.Nop())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
