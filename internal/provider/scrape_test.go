package provider

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
)

func scraperReturning(t *testing.T, status int, html string) *Scraper {
	t.Helper()
	s := NewScraper(testTracer, nil, "test-agent")
	s.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(status, html), nil
	})}
	return s
}

func TestScrapeIndexKeyInfo(t *testing.T) {
	html := `<html><body><dl>
		<dd data-test="open"><span class="key-info_dd-numeric__ZQFIs"><span>-</span><span>38,123.45</span></span></dd>
	</dl></body></html>`
	quote, err := scraperReturning(t, http.StatusOK, html).Scrape(context.Background(), PageIndexKeyInfo, "https://example.com/n225")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Open != 38123.45 {
		t.Fatalf("expected open 38123.45, got %.2f", quote.Open)
	}
	if !math.IsNaN(quote.Close) {
		t.Fatalf("expected close to stay missing, got %.2f", quote.Close)
	}
}

func TestScrapeIndexKeyInfoMissingElement(t *testing.T) {
	quote, err := scraperReturning(t, http.StatusOK, `<html><body></body></html>`).
		Scrape(context.Background(), PageIndexKeyInfo, "https://example.com/n225")
	var notFound *ElementNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected element not found, got %v", err)
	}
	if !math.IsNaN(quote.Open) {
		t.Fatalf("expected missing open, got %.2f", quote.Open)
	}
}

func TestScrapeQuoteLive(t *testing.T) {
	html := `<html><body>
		<li><span class="last-md last-lg yf-mrt107"><fin-streamer data-field="regularMarketOpen">5,612.50</fin-streamer></span></li>
		<fin-streamer class="livePrice yf-1tejb6" data-value="5630.1"><span>5,630.10</span></fin-streamer>
	</body></html>`
	quote, err := scraperReturning(t, http.StatusOK, html).Scrape(context.Background(), PageQuoteLive, "https://example.com/gspc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Open != 5612.5 || quote.Close != 5630.1 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestScrapeQuoteLiveCoercesGarbage(t *testing.T) {
	html := `<html><body>
		<span class="last-md last-lg yf-mrt107"><fin-streamer>--</fin-streamer></span>
	</body></html>`
	quote, err := scraperReturning(t, http.StatusOK, html).Scrape(context.Background(), PageQuoteLive, "https://example.com/dji")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(quote.Open) || !math.IsNaN(quote.Close) {
		t.Fatalf("expected both fields missing, got %+v", quote)
	}
}

func TestScrapeInstrumentLast(t *testing.T) {
	html := `<html><body>
		<div class="mb-3 flex flex-wrap items-center gap-x-4 gap-y-2 md:mb-0.5 md:gap-6">
			<div data-test="instrument-price-last">16.42</div>
		</div>
	</body></html>`
	quote, err := scraperReturning(t, http.StatusOK, html).Scrape(context.Background(), PageInstrumentLast, "https://example.com/vix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Open != 16.42 {
		t.Fatalf("expected 16.42, got %.2f", quote.Open)
	}
}

func TestScrapeInstrumentLastParseError(t *testing.T) {
	html := `<html><body>
		<div class="mb-3 flex flex-wrap items-center gap-x-4 gap-y-2 md:mb-0.5 md:gap-6">
			<div data-test="instrument-price-last">4,512.10</div>
		</div>
	</body></html>`
	_, err := scraperReturning(t, http.StatusOK, html).Scrape(context.Background(), PageInstrumentLast, "https://example.com/tnx")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if parseErr.Text != "4,512.10" {
		t.Fatalf("unexpected parse error text %q", parseErr.Text)
	}
}

func TestScrapeStatusError(t *testing.T) {
	_, err := scraperReturning(t, http.StatusForbidden, "blocked").
		Scrape(context.Background(), PageInstrumentLast, "https://example.com/tyx")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusForbidden {
		t.Fatalf("expected status error, got %v", err)
	}
}
