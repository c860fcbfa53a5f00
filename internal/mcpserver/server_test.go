package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/provider"
	"ni225-oracle/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

type runnerStub struct {
	err  error
	req  service.RunRequest
	runs int
}

func (s *runnerStub) Run(_ context.Context, req service.RunRequest) (*service.Report, error) {
	s.runs++
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.Report{SignalRun: domain.SignalRun{
		RunID:      "run-1",
		Profile:    "open-known",
		SignalDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Signal:     domain.SignalBuy,
		Action:     "Buy",
	}}, nil
}

func textOf(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestPredictHandler(t *testing.T) {
	stub := &runnerStub{}
	h := predictHandler(stub, zerolog.Nop())

	res, out, err := h(context.Background(), nil, PredictInput{ManualOpen: "38512.5"})
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %s", err, textOf(res))
	}
	if out.Signal != 0.5 || out.Action != "Buy" || out.SignalDate != "2026-03-04" {
		t.Fatalf("unexpected output %+v", out)
	}
	if stub.req.Trigger != service.TriggerMCP || *stub.req.ManualOpen != 38512.5 {
		t.Fatalf("unexpected run request %+v", stub.req)
	}
	if !strings.Contains(textOf(res), "Buy") {
		t.Fatalf("text content should carry the report, got %q", textOf(res))
	}
}

func TestPredictHandlerToolErrors(t *testing.T) {
	cases := []struct {
		name string
		in   PredictInput
		err  error
		want string
	}{
		{"bad open", PredictInput{ManualOpen: "soon"}, nil, "not a number"},
		{"bad profile", PredictInput{Profile: "weekly"}, nil, "unknown profile"},
		{"busy", PredictInput{}, lock.ErrHeld, "already in progress"},
		{"open with full", PredictInput{ManualOpen: "38000", Profile: "full"}, fmt.Errorf("profile full: %w", service.ErrManualOpenUnsupported), "only used by the open-known profile"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, _, err := predictHandler(&runnerStub{err: tc.err}, zerolog.Nop())(context.Background(), nil, tc.in)
			if err != nil {
				t.Fatalf("tool errors should be results, got %v", err)
			}
			if !res.IsError || !strings.Contains(textOf(res), tc.want) {
				t.Fatalf("expected error result containing %q, got %q", tc.want, textOf(res))
			}
		})
	}
}

func TestServerListsAndCallsTool(t *testing.T) {
	ctx := context.Background()
	stub := &runnerStub{}
	server := New("test", stub, zerolog.Nop())

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"profile": "open-known"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || stub.runs != 1 {
		t.Fatalf("expected one successful run, got %q runs=%d", textOf(res), stub.runs)
	}
}

func TestHTTPHandlerAuthAndRateLimit(t *testing.T) {
	server := New("test", &runnerStub{}, zerolog.Nop())
	limiter := provider.NewRateLimiter(1, time.Hour)
	h := HTTPHandler(server, "secret", limiter)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	authed := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer secret")
		return req
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed())
	if w.Code == http.StatusUnauthorized || w.Code == http.StatusTooManyRequests {
		t.Fatalf("first authorized request should reach the MCP handler, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is spent, got %d", w.Code)
	}
}
