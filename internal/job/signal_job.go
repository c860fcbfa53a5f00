package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type SignalRunner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.Report, error)
}

// Notifier delivers the rendered report of a scheduled run.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// SignalJob runs the pipeline on a cron schedule in the market's timezone.
type SignalJob struct {
	tracer   trace.Tracer
	runner   SignalRunner
	notifier Notifier
	cron     *cron.Cron
	log      zerolog.Logger
}

// NewSignalJob parses spec (six fields, seconds first). notifier may be nil.
func NewSignalJob(tracer trace.Tracer, runner SignalRunner, notifier Notifier, spec string, loc *time.Location, log zerolog.Logger) (*SignalJob, error) {
	if loc == nil {
		loc = time.UTC
	}
	j := &SignalJob{
		tracer:   tracer,
		runner:   runner,
		notifier: notifier,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:      log.With().Str("job", "signal").Logger(),
	}
	if _, err := j.cron.AddFunc(spec, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("register signal job %q: %w", spec, err)
	}
	return j, nil
}

// Start runs the schedule until ctx is cancelled, then waits for an
// in-flight run to finish.
func (j *SignalJob) Start(ctx context.Context) {
	j.cron.Start()
	j.log.Info().Time("next", j.cron.Entries()[0].Next).Msg("signal job scheduled")

	<-ctx.Done()
	<-j.cron.Stop().Done()
	j.log.Info().Msg("signal job stopped")
}

func (j *SignalJob) RunOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "signal-job.run-once")
	defer span.End()

	report, err := j.runner.Run(ctx, service.RunRequest{Trigger: service.TriggerCron})
	if errors.Is(err, lock.ErrHeld) {
		j.log.Info().Msg("skipping scheduled run, another run is in progress")
		return
	}
	if err != nil {
		j.log.Error().Err(err).Msg("scheduled signal run failed")
		return
	}
	if j.notifier == nil {
		return
	}
	if err := j.notifier.Notify(ctx, service.FormatText(report)); err != nil {
		j.log.Warn().Err(err).Msg("deliver scheduled signal")
	}
}
