package provider

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/domain"
)

// PageKind names the page layout a scrape URL points at.
type PageKind string

const (
	// PageIndexKeyInfo is an index overview page listing today's open in
	// its key-info block.
	PageIndexKeyInfo PageKind = "index_key_info"
	// PageQuoteLive is a quote page with an open figure and a live price.
	PageQuoteLive PageKind = "quote_live"
	// PageInstrumentLast is an instrument page showing only the last price.
	PageInstrumentLast PageKind = "instrument_last"
)

const (
	keyInfoOpenSelector    = `dd[data-test="open"]`
	keyInfoNumericSelector = "span.key-info_dd-numeric__ZQFIs"
	quoteOpenSelector      = ".last-md.last-lg.yf-mrt107"
	quoteLiveSelector      = "fin-streamer.livePrice.yf-1tejb6"
	instrumentBoxSelector  = `[class="mb-3 flex flex-wrap items-center gap-x-4 gap-y-2 md:mb-0.5 md:gap-6"]`
	instrumentLastSelector = `div[data-test="instrument-price-last"]`
)

// Scraper reads a single current quote from an HTML page.
type Scraper struct {
	client    *http.Client
	userAgent string
	tracer    trace.Tracer
	limiter   *RateLimiter
}

func NewScraper(tracer trace.Tracer, limiter *RateLimiter, userAgent string) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: 20 * time.Second},
		userAgent: userAgent,
		tracer:    tracer,
		limiter:   limiter,
	}
}

// Scrape fetches pageURL and extracts today's values for the given layout.
// The returned quote is always usable: fields that could not be read are NaN
// and the error says why.
func (s *Scraper) Scrape(ctx context.Context, kind PageKind, pageURL string) (domain.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "scrape.quote", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("url", pageURL),
	))
	defer span.End()

	doc, err := s.fetch(ctx, pageURL)
	if err != nil {
		return domain.MissingQuote(), err
	}

	switch kind {
	case PageIndexKeyInfo:
		return parseKeyInfo(doc, pageURL)
	case PageQuoteLive:
		return parseQuoteLive(doc, pageURL)
	case PageInstrumentLast:
		return parseInstrumentLast(doc, pageURL)
	default:
		return domain.MissingQuote(), fmt.Errorf("unknown page kind %q", kind)
	}
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: pageURL, Code: resp.StatusCode, Body: string(body)}
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}
	return doc, nil
}

// parseKeyInfo reads the second span inside the open figure, e.g.
// <dd data-test="open"><span class="key-info_dd-numeric__ZQFIs"><span>-</span><span>38,123.45</span></span></dd>.
func parseKeyInfo(doc *goquery.Document, pageURL string) (domain.Quote, error) {
	quote := domain.MissingQuote()
	dd := doc.Find(keyInfoOpenSelector).First()
	if dd.Length() == 0 {
		return quote, &ElementNotFoundError{URL: pageURL, Selector: keyInfoOpenSelector}
	}
	value := dd.Find(keyInfoNumericSelector).First().Find("span").Eq(1)
	if value.Length() == 0 {
		return quote, &ElementNotFoundError{URL: pageURL, Selector: keyInfoNumericSelector + " span:nth(2)"}
	}
	text := strings.TrimSpace(value.Text())
	open, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
	if err != nil {
		return quote, &ParseError{URL: pageURL, Field: "open", Text: text, Err: err}
	}
	quote.Open = open
	return quote, nil
}

// parseQuoteLive reads the open figure and the live price. Unreadable values
// are coerced to NaN; only a missing open element is reported.
func parseQuoteLive(doc *goquery.Document, pageURL string) (domain.Quote, error) {
	quote := domain.MissingQuote()
	if live := doc.Find(quoteLiveSelector).First(); live.Length() > 0 {
		if raw, ok := live.Attr("data-value"); ok {
			quote.Close = coerceFloat(raw)
		}
	}
	openBox := doc.Find(quoteOpenSelector).First()
	if openBox.Length() == 0 {
		return quote, &ElementNotFoundError{URL: pageURL, Selector: quoteOpenSelector}
	}
	text := strings.TrimSpace(openBox.Find("fin-streamer").First().Text())
	quote.Open = coerceFloat(strings.ReplaceAll(text, ",", ""))
	return quote, nil
}

// parseInstrumentLast reads the last price, which has no thousands separator
// on these pages.
func parseInstrumentLast(doc *goquery.Document, pageURL string) (domain.Quote, error) {
	quote := domain.MissingQuote()
	box := doc.Find(instrumentBoxSelector).First()
	if box.Length() == 0 {
		return quote, &ElementNotFoundError{URL: pageURL, Selector: instrumentBoxSelector}
	}
	last := box.Find(instrumentLastSelector).First()
	if last.Length() == 0 {
		return quote, &ElementNotFoundError{URL: pageURL, Selector: instrumentLastSelector}
	}
	text := strings.TrimSpace(last.Text())
	open, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return quote, &ParseError{URL: pageURL, Field: "open", Text: text, Err: err}
	}
	quote.Open = open
	return quote, nil
}

func coerceFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
