package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/domain"
)

const yahooChartBaseURL = "https://query1.finance.yahoo.com"

// YahooChartProvider reads daily bars from the Yahoo Finance chart API.
type YahooChartProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
	limiter   *RateLimiter
}

func NewYahooChartProvider(tracer trace.Tracer, limiter *RateLimiter, userAgent string) *YahooChartProvider {
	return &YahooChartProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   yahooChartBaseURL,
		userAgent: userAgent,
		tracer:    tracer,
		limiter:   limiter,
	}
}

// yahooChart is the subset of the chart response used here. Price arrays
// carry JSON nulls for sessions without a print.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset        int64  `json:"gmtoffset"`
				ExchangeTimezone string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily returns bars whose session date falls in [from, to), sorted
// ascending with duplicate dates collapsed to the last print.
func (p *YahooChartProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.fetch-daily", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", from.Unix()))
	q.Set("period2", fmt.Sprintf("%d", to.Unix()))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		strings.TrimRight(p.baseURL, "/"), url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: endpoint, Code: resp.StatusCode, Body: string(body)}
	}

	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decode yahoo chart %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]
	loc := time.FixedZone("exchange", int(result.Meta.GMTOffset))
	fromDate := domain.DateOf(from, loc)
	toDate := domain.DateOf(to, loc)

	byDate := make(map[time.Time]domain.PriceBar, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open := at(quote.Open, i)
		closePrice := at(quote.Close, i)
		if math.IsNaN(open) && math.IsNaN(closePrice) {
			continue
		}
		date := domain.DateOf(time.Unix(ts, 0), loc)
		if date.Before(fromDate) || !date.Before(toDate) {
			continue
		}
		byDate[date] = domain.PriceBar{
			Date:   date,
			Open:   open,
			Close:  closePrice,
			Volume: at(quote.Volume, i),
		}
	}

	bars := make([]domain.PriceBar, 0, len(byDate))
	for _, bar := range byDate {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	span.SetAttributes(attribute.Int("bars", len(bars)))
	return bars, nil
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}
