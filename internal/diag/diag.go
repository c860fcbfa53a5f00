// Package diag collects the ordered, typed diagnostics of a pipeline run.
// They are returned to the caller as values and mirrored to the logger.
package diag

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type Kind string

const (
	StaleData    Kind = "stale_data"
	MissingValue Kind = "missing_value"
	FetchFailed  Kind = "fetch_failed"
	ParseFailed  Kind = "parse_failed"
	RowsDropped  Kind = "rows_dropped"
	Info         Kind = "info"
)

type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Ticker  string `json:"ticker,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (d Diagnostic) String() string {
	prefix := string(d.Kind)
	if d.Ticker != "" {
		prefix += " " + d.Ticker
	}
	if d.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, d.Message, d.Err)
	}
	return fmt.Sprintf("[%s] %s", prefix, d.Message)
}

// Collector appends diagnostics in arrival order. The zero value is not
// usable; call NewCollector.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
	log   zerolog.Logger
}

func NewCollector(log zerolog.Logger) *Collector {
	return &Collector{log: log}
}

func (c *Collector) Add(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()

	event := c.log.Warn()
	if d.Kind == Info {
		event = c.log.Info()
	}
	if d.Err != nil {
		event = event.Err(d.Err)
	}
	event.Str("kind", string(d.Kind)).Str("ticker", d.Ticker).Msg(d.Message)
}

// Addf records a diagnostic with a formatted message.
func (c *Collector) Addf(kind Kind, ticker string, err error, format string, args ...any) {
	c.Add(Diagnostic{Kind: kind, Ticker: ticker, Message: fmt.Sprintf(format, args...), Err: err})
}

// Items returns a copy of everything recorded so far.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.items...)
}

// Count returns how many diagnostics of kind were recorded.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Strings renders every diagnostic for storage and plain-text reports.
func Strings(items []Diagnostic) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.String()
	}
	return out
}
