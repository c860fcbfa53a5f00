// Command predict runs the signal pipeline once and prints the report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"ni225-oracle/internal/app"
	"ni225-oracle/internal/config"
	"ni225-oracle/internal/service"
	"ni225-oracle/internal/tui"
	"ni225-oracle/pkg/logger"
	"ni225-oracle/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

// Exit codes.
const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	buildAppFunc   = app.Build
	runProgramFunc = func(m tea.Model) (tea.Model, error) {
		return tea.NewProgram(m).Run()
	}
	runnerFunc = func(a *app.App) tui.Runner { return a.Signals }
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	openText := fs.String("open", "", "today's open for the primary index, blank if unknown")
	profile := fs.String("profile", "", "feature profile (open-known or full), defaults to SIGNAL_PROFILE")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	interactive := fs.Bool("i", false, "prompt for the manual open")
	latest := fs.Bool("latest", false, "print the latest stored run instead of running")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	manualOpen, err := service.ParseManualOpen(*openText)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	tp, tracer, err := initTracerFunc(ctx, "ni225-oracle-predict")
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize tracer")
		return exitRun
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Debug().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	a, err := buildAppFunc(ctx, cfg, log, tracer, app.Options{})
	if err != nil {
		log.Error().Err(err).Msg("failed to build signal service")
		return exitRun
	}
	defer a.Close()

	signals := runnerFunc(a)
	var report *service.Report
	switch {
	case *latest:
		report, err = signals.Latest(ctx, *profile)
	case *interactive:
		report, err = prompt(signals, *profile)
		if err == nil && !*asJSON {
			// the program's final frame already shows the report
			return exitOK
		}
	default:
		report, err = signals.Run(ctx, service.RunRequest{Profile: *profile, ManualOpen: manualOpen, Trigger: service.TriggerCLI})
	}
	if err != nil {
		fmt.Fprintln(stderr, tui.RenderError(err))
		return exitRun
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Error().Err(err).Msg("encode report")
			return exitRun
		}
		return exitOK
	}
	fmt.Fprintln(stdout, tui.RenderReport(report, 0))
	return exitOK
}

func prompt(signals tui.Runner, profile string) (*service.Report, error) {
	final, err := runProgramFunc(tui.New(signals, tui.Options{
		Profile:      profile,
		Trigger:      service.TriggerCLI,
		QuitOnReport: true,
	}))
	if err != nil {
		return nil, err
	}
	m, ok := final.(tui.Model)
	if !ok {
		return nil, errors.New("unexpected program model")
	}
	report, err := m.Result()
	if err == nil && report == nil {
		return nil, errors.New("cancelled")
	}
	return report, err
}
