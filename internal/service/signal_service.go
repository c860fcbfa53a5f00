package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"ni225-oracle/internal/config"
	"ni225-oracle/internal/diag"
	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/features"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/metrics"
	"ni225-oracle/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecentRows is how many trailing merged rows the audit table shows.
const RecentRows = 10

// Run triggers, used as a metrics label.
const (
	TriggerAPI      = "api"
	TriggerCron     = "cron"
	TriggerTelegram = "telegram"
	TriggerMCP      = "mcp"
	TriggerCLI      = "cli"
	TriggerSSH      = "ssh"
)

// ErrManualOpenUnsupported means a manual open was given for a profile whose
// features never read today's open.
var ErrManualOpenUnsupported = errors.New("manual open is only used by the open-known profile")

// ErrNoReport means no run has completed for the requested profile.
var ErrNoReport = errors.New("no signal has been computed yet")

// IncompleteRowsError is returned under the fail policy when ModelInput
// rows still carry missing values after forward-fill.
type IncompleteRowsError struct {
	Dates []time.Time
}

func (e *IncompleteRowsError) Error() string {
	return fmt.Sprintf("%d model input rows have missing values (first %s)", len(e.Dates), e.Dates[0].Format(domain.DateLayout))
}

type PanelAssembler interface {
	Assemble(ctx context.Context, profile features.Profile, manualOpen *float64, diags *diag.Collector) (*features.Panel, error)
	Universe() features.Universe
}

type Ensemble interface {
	CheckSchema(columns []string) error
	Predict(ctx context.Context, dates []time.Time, rows [][]float64) ([]domain.PredictionRow, error)
}

type RunRepository interface {
	SaveRun(ctx context.Context, run domain.SignalRun) error
	LatestRun(ctx context.Context, profile string) (*domain.SignalRun, error)
}

// RunRequest parameterizes one pipeline run.
type RunRequest struct {
	Profile    string
	ManualOpen *float64
	Trigger    string
}

// Report is the outcome of a run: the persisted run plus the ModelInput
// schema and the per-date predictions.
type Report struct {
	domain.SignalRun
	Columns     []string               `json:"columns,omitempty"`
	Predictions []domain.PredictionRow `json:"predictions,omitempty"`
}

type Options struct {
	DefaultProfile  string
	OnIncompleteRow string
	Timeout         time.Duration
}

type SignalService struct {
	tracer    trace.Tracer
	assembler PanelAssembler
	ensemble  Ensemble
	locker    lock.Locker
	repo      RunRepository
	metrics   *metrics.Recorder
	log       zerolog.Logger
	opts      Options
	now       func() time.Time

	mu     sync.RWMutex
	latest map[string]*Report
}

// NewSignalService wires a service. repo and rec may be nil.
func NewSignalService(
	tracer trace.Tracer,
	assembler PanelAssembler,
	ensemble Ensemble,
	locker lock.Locker,
	repo RunRepository,
	rec *metrics.Recorder,
	log zerolog.Logger,
	opts Options,
) *SignalService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if opts.OnIncompleteRow == "" {
		opts.OnIncompleteRow = config.IncompleteRowDrop
	}
	return &SignalService{
		tracer:    tracer,
		assembler: assembler,
		ensemble:  ensemble,
		locker:    locker,
		repo:      repo,
		metrics:   rec,
		log:       log,
		opts:      opts,
		now:       time.Now,
		latest:    make(map[string]*Report),
	}
}

func (s *SignalService) profile(name string) (features.Profile, error) {
	if strings.TrimSpace(name) == "" {
		name = s.opts.DefaultProfile
	}
	return features.ProfileByName(name)
}

// Schema returns the ordered ModelInput columns of a profile.
func (s *SignalService) Schema(profileName string) (features.Profile, []string, error) {
	p, err := s.profile(profileName)
	if err != nil {
		return features.Profile{}, nil, err
	}
	return p, p.InputColumns(s.assembler.Universe()), nil
}

// Run assembles the panel, predicts every complete ModelInput row and
// reports the decision for the most recent one.
func (s *SignalService) Run(ctx context.Context, req RunRequest) (*Report, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerAPI
	}
	report, err := s.run(ctx, req)
	switch {
	case errors.Is(err, lock.ErrHeld):
		s.recordRun(trigger, "busy")
	case err != nil:
		s.recordRun(trigger, "error")
		s.log.Error().Err(err).Str("trigger", trigger).Msg("signal run failed")
	default:
		s.recordRun(trigger, "ok")
		s.log.Info().
			Str("run_id", report.RunID).
			Str("profile", report.Profile).
			Str("signal_date", report.SignalDate.Format(domain.DateLayout)).
			Float64("signal", float64(report.Signal)).
			Str("action", report.Action).
			Int("diagnostics", len(report.Diagnostics)).
			Msg("signal run complete")
	}
	return report, err
}

func (s *SignalService) run(ctx context.Context, req RunRequest) (*Report, error) {
	profile, err := s.profile(req.Profile)
	if err != nil {
		return nil, err
	}
	if req.ManualOpen != nil && !profile.UsesManualOpen() {
		return nil, fmt.Errorf("profile %s: %w", profile.Name, ErrManualOpenUnsupported)
	}

	release, err := s.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "signal-service.run", trace.WithAttributes(attribute.String("profile", profile.Name)))
	defer span.End()

	runAt := s.now().UTC()
	diags := diag.NewCollector(s.log)

	started := time.Now()
	panel, err := s.assembler.Assemble(ctx, profile, req.ManualOpen, diags)
	if err != nil {
		return nil, fmt.Errorf("assemble %s panel: %w", profile.Name, err)
	}
	s.recordStage("assemble", started)

	columns := panel.Input.Columns()
	if err := s.ensemble.CheckSchema(columns); err != nil {
		return nil, err
	}

	input, dropped := panel.Input.DropIncomplete()
	if len(dropped) > 0 {
		if s.opts.OnIncompleteRow == config.IncompleteRowFail {
			return nil, &IncompleteRowsError{Dates: dropped}
		}
		diags.Addf(diag.RowsDropped, "", nil, "dropped %d model input rows with missing values: %s", len(dropped), joinDates(dropped))
		if s.metrics != nil {
			s.metrics.RecordDroppedRows(len(dropped))
		}
	}
	if input.Len() == 0 {
		return nil, errors.New("no complete model input rows to predict")
	}

	started = time.Now()
	preds, err := s.ensemble.Predict(ctx, input.Index(), input.Rows())
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	s.recordStage("predict", started)

	last := preds[len(preds)-1]
	report := &Report{
		SignalRun: domain.SignalRun{
			RunID:      uuid.NewString(),
			Profile:    profile.Name,
			RunAt:      runAt,
			SignalDate: last.Date,
			Signal:     last.Signal,
			Action:     last.Signal.Action(),
			ManualOpen: req.ManualOpen,
		},
		Columns:     columns,
		Predictions: preds,
	}
	report.Rows = recentRows(panel, preds, diags)
	report.Diagnostics = diag.Strings(diags.Items())
	span.SetAttributes(attribute.Float64("signal", float64(last.Signal)), attribute.Int("diagnostics", len(report.Diagnostics)))

	if s.metrics != nil {
		for _, d := range diags.Items() {
			s.metrics.RecordDiagnostic(string(d.Kind))
		}
		s.metrics.RecordSignal(profile.Name, float64(last.Signal), runAt.Unix())
	}

	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, report.SignalRun); err != nil {
			s.log.Warn().Err(err).Str("run_id", report.RunID).Msg("persist signal run")
		}
	}

	s.mu.Lock()
	s.latest[profile.Name] = report
	s.mu.Unlock()
	return report, nil
}

// Latest returns the newest report for a profile, from memory or, failing
// that, from the repository.
func (s *SignalService) Latest(ctx context.Context, profileName string) (*Report, error) {
	profile, err := s.profile(profileName)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	report, ok := s.latest[profile.Name]
	s.mu.RUnlock()
	if ok {
		return report, nil
	}
	if s.repo == nil {
		return nil, ErrNoReport
	}

	run, err := s.repo.LatestRun(ctx, profile.Name)
	if errors.Is(err, repository.ErrNoRuns) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("load latest run: %w", err)
	}
	return &Report{SignalRun: *run}, nil
}

// recentRows builds the audit table from the last RecentRows merged dates.
// Rows with a missing cell are left out.
func recentRows(panel *features.Panel, preds []domain.PredictionRow, diags *diag.Collector) []domain.SignalRunRow {
	byDate := make(map[time.Time]float64, len(preds))
	for _, p := range preds {
		byDate[p.Date] = float64(p.Signal)
	}

	tail := panel.Merged.Tail(RecentRows)
	columns := tail.Columns()
	var (
		rows    []domain.SignalRunRow
		skipped []time.Time
	)
	for i, date := range tail.Index() {
		values := tail.Row(i)
		row := domain.SignalRunRow{Date: date, Features: make(map[string]float64, len(columns))}
		complete := true
		for j, name := range columns {
			if math.IsNaN(values[j]) {
				complete = false
				break
			}
			row.Features[name] = values[j]
		}
		if !complete {
			skipped = append(skipped, date)
			continue
		}
		if sig, ok := byDate[date]; ok {
			row.Prediction = &sig
		}
		rows = append(rows, row)
	}
	if len(skipped) > 0 {
		diags.Addf(diag.RowsDropped, "", nil, "left %d recent rows with missing values out of the audit table: %s", len(skipped), joinDates(skipped))
	}
	return rows
}

func (s *SignalService) recordRun(trigger, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRun(trigger, outcome)
	}
}

func (s *SignalService) recordStage(stage string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStage(stage, time.Since(started).Seconds())
	}
}

func joinDates(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format(domain.DateLayout)
	}
	return strings.Join(parts, ", ")
}

// ParseManualOpen reads the free-text manual Open. Blank means none.
func ParseManualOpen(text string) (*float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("manual open %q is not a number", text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil, fmt.Errorf("manual open must be a positive price, got %q", text)
	}
	return &v, nil
}
