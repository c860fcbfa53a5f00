package bot

import (
	"context"
	"fmt"
	"errors"
	"strings"
	"testing"
	"time"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/service"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
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
	if s.report == nil {
		return nil, service.ErrNoReport
	}
	return s.report, nil
}

func stubReport() *service.Report {
	return &service.Report{SignalRun: domain.SignalRun{
		RunID:      "run-1",
		Profile:    "open-known",
		SignalDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Signal:     domain.SignalStrongBuy,
		Action:     "Strong Buy",
	}}
}

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	b, err := StartTelegramBot("", nil, zerolog.Nop())
	if err != nil || b != nil {
		t.Fatalf("expected a disabled bot, got %v %v", b, err)
	}
}

func TestStartTelegramBotReportsCreateError(t *testing.T) {
	orig := newBot
	defer func() { newBot = orig }()
	newBot = func(tele.Settings) (*tele.Bot, error) { return nil, errors.New("unauthorized") }

	if _, err := StartTelegramBot("token", nil, zerolog.Nop()); err == nil {
		t.Fatal("expected create error")
	}
}

func TestParseArgs(t *testing.T) {
	profile, open, err := parseArgs([]string{"full", "38512.5"})
	if err != nil || profile != "full" || open == nil || *open != 38512.5 {
		t.Fatalf("unexpected parse: %q %v %v", profile, open, err)
	}
	profile, open, err = parseArgs(nil)
	if err != nil || profile != "" || open != nil {
		t.Fatalf("empty args should mean defaults: %q %v %v", profile, open, err)
	}
	if _, _, err := parseArgs([]string{"abc"}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, err := parseArgs([]string{"1", "2"}); err == nil {
		t.Fatal("expected error for two opens")
	}
}

func TestSignalReply(t *testing.T) {
	stub := &runnerStub{report: stubReport()}
	reply := signalReply(context.Background(), stub, []string{"38512.5"})
	if !strings.Contains(reply, "Strong Buy") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if stub.req.Trigger != service.TriggerTelegram || *stub.req.ManualOpen != 38512.5 {
		t.Fatalf("unexpected request %+v", stub.req)
	}

	reply = signalReply(context.Background(), &runnerStub{err: lock.ErrHeld}, nil)
	if !strings.Contains(reply, "already in progress") {
		t.Fatalf("unexpected busy reply %q", reply)
	}
	reply = signalReply(context.Background(), &runnerStub{err: fmt.Errorf("profile full: %w", service.ErrManualOpenUnsupported)}, []string{"full", "38000"})
	if !strings.Contains(reply, "only used by the open-known profile") || !strings.Contains(reply, "Usage") {
		t.Fatalf("expected manual open rejection, got %q", reply)
	}
	reply = signalReply(context.Background(), &runnerStub{}, []string{"x"})
	if !strings.Contains(reply, "Usage") {
		t.Fatalf("expected usage on bad input, got %q", reply)
	}
}

func TestLatestReply(t *testing.T) {
	if reply := latestReply(context.Background(), &runnerStub{}, nil); !strings.Contains(reply, "No signal yet") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply := latestReply(context.Background(), &runnerStub{report: stubReport()}, []string{"open-known"}); !strings.Contains(reply, "Strong Buy") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply := latestReply(context.Background(), &runnerStub{}, []string{"weekly"}); !strings.Contains(reply, "unknown profile") {
		t.Fatalf("unexpected reply %q", reply)
	}
}
