// Package mcpserver exposes the signal pipeline as an MCP tool.
package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/features"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/provider"
	"ni225-oracle/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

const ToolName = "predict_index_signal"

type SignalRunner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.Report, error)
}

// PredictInput is the tool's argument object.
type PredictInput struct {
	ManualOpen string `json:"manual_open,omitempty" jsonschema:"today's opening price of the index if already known; blank for none"`
	Profile    string `json:"profile,omitempty" jsonschema:"feature profile: open-known (default) or full"`
}

// PredictOutput is the tool's structured result.
type PredictOutput struct {
	RunID       string   `json:"run_id"`
	Profile     string   `json:"profile"`
	SignalDate  string   `json:"signal_date"`
	Signal      float64  `json:"signal"`
	Action      string   `json:"action"`
	Diagnostics []string `json:"diagnostics"`
}

// New builds a server with the prediction tool registered.
func New(version string, signals SignalRunner, log zerolog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "ni225-oracle", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Run the Nikkei 225 daily signal pipeline and return the trading decision (-1 strong sell to 1 strong buy) with data diagnostics.",
	}, predictHandler(signals, log))
	return server
}

func predictHandler(signals SignalRunner, log zerolog.Logger) func(context.Context, *mcp.CallToolRequest, PredictInput) (*mcp.CallToolResult, PredictOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PredictInput) (*mcp.CallToolResult, PredictOutput, error) {
		if _, err := features.ProfileByName(in.Profile); err != nil {
			return toolError(err.Error()), PredictOutput{}, nil
		}
		open, err := service.ParseManualOpen(in.ManualOpen)
		if err != nil {
			return toolError(err.Error()), PredictOutput{}, nil
		}

		report, err := signals.Run(ctx, service.RunRequest{Profile: in.Profile, ManualOpen: open, Trigger: service.TriggerMCP})
		if errors.Is(err, lock.ErrHeld) {
			return toolError("a signal run is already in progress; retry shortly"), PredictOutput{}, nil
		}
		if errors.Is(err, service.ErrManualOpenUnsupported) {
			return toolError(err.Error()), PredictOutput{}, nil
		}
		if err != nil {
			log.Error().Err(err).Str("tool", ToolName).Msg("tool call failed")
			return toolError("signal run failed: " + err.Error()), PredictOutput{}, nil
		}

		out := PredictOutput{
			RunID:       report.RunID,
			Profile:     report.Profile,
			SignalDate:  report.SignalDate.Format(domain.DateLayout),
			Signal:      float64(report.Signal),
			Action:      report.Action,
			Diagnostics: report.Diagnostics,
		}
		if out.Diagnostics == nil {
			out.Diagnostics = []string{}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: service.FormatText(report)}},
		}, out, nil
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

// HTTPHandler serves the server over streamable HTTP behind a bearer token
// and a per-minute request budget.
func HTTPHandler(server *mcp.Server, token string, limiter *provider.RateLimiter) http.Handler {
	inner := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		inner.ServeHTTP(w, r)
	})
}
