package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/service"

	tea "github.com/charmbracelet/bubbletea"
)

type runnerStub struct {
	report *service.Report
	err    error
	req    service.RunRequest
}

func (s *runnerStub) Run(_ context.Context, req service.RunRequest) (*service.Report, error) {
	s.req = req
	return s.report, s.err
}

func (s *runnerStub) Latest(context.Context, string) (*service.Report, error) {
	return s.report, s.err
}

func stubReport() *service.Report {
	pred := 1.0
	return &service.Report{
		SignalRun: domain.SignalRun{
			RunID:       "run-1",
			Profile:     "open-known",
			SignalDate:  time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
			Signal:      domain.SignalStrongBuy,
			Action:      "Strong Buy",
			Diagnostics: []string{"[stale_data ^VIX] no bar for 2026-03-04"},
			Rows: []domain.SignalRunRow{{
				Date:       time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
				Features:   map[string]float64{"RSI": 61.25, "Open_Close_diff_ratio": 0.4},
				Prediction: &pred,
			}},
		},
		Columns: []string{"Open_Close_diff_ratio", "RSI"},
	}
}

func typeText(m tea.Model, text string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestModelRunsWithManualOpen(t *testing.T) {
	stub := &runnerStub{report: stubReport()}
	var m tea.Model = New(stub, Options{Profile: "open-known", Trigger: service.TriggerCLI, QuitOnReport: true})

	m = typeText(m, "38512.5")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || m.(Model).state != stateRunning {
		t.Fatal("enter should start a run")
	}

	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch of spinner and run commands")
	}
	var msg tea.Msg
	for _, c := range batch {
		if c == nil {
			continue
		}
		if rm, ok := c().(reportMsg); ok {
			msg = rm
		}
	}
	if msg == nil {
		t.Fatal("run command did not produce a report")
	}
	if *stub.req.ManualOpen != 38512.5 || stub.req.Profile != "open-known" || stub.req.Trigger != service.TriggerCLI {
		t.Fatalf("unexpected run request %+v", stub.req)
	}
	m, cmd = m.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit after the report")
	}
	report, err := m.(Model).Result()
	if err != nil || report.RunID != "run-1" {
		t.Fatalf("unexpected result %v %v", report, err)
	}
	if view := m.View(); !strings.Contains(view, "Strong Buy") {
		t.Fatalf("view should show the decision:\n%s", view)
	}
}

func TestModelRejectsBadOpen(t *testing.T) {
	var m tea.Model = New(&runnerStub{}, Options{})
	m = typeText(m, "abc")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.(Model).state != stateInput {
		t.Fatal("invalid input should keep the prompt open")
	}
	if !strings.Contains(m.View(), "not a number") {
		t.Fatalf("expected inline error, got:\n%s", m.View())
	}
}

func TestModelShowsRunErrorAndRestarts(t *testing.T) {
	var m tea.Model = New(&runnerStub{}, Options{})
	m, _ = m.Update(reportMsg{err: errors.New("direction model: boom")})
	if !strings.Contains(m.View(), "run failed: direction model: boom") {
		t.Fatalf("expected error view, got:\n%s", m.View())
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if m.(Model).state != stateInput {
		t.Fatal("r should return to the prompt")
	}
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(stubReport(), 1)
	for _, want := range []string{"^N225", "2026-03-04", "Strong Buy", "Open_Close_diff_ratio", "0.400", "[stale_data ^VIX]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "61.250") {
		t.Fatalf("column cap should hide RSI:\n%s", out)
	}
}

func TestReportColumnsFallsBackToFeatureNames(t *testing.T) {
	r := stubReport()
	r.Columns = nil
	cols := reportColumns(r)
	if len(cols) != 2 || cols[0] != "Open_Close_diff_ratio" || cols[1] != "RSI" {
		t.Fatalf("unexpected columns %v", cols)
	}
}
