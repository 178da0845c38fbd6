package image

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/types"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc backed by a timer.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollStep evaluates a single poll attempt. Only JobReady must return a
// result, and only JobFailed must return an error.
type PollStep func(ctx context.Context, attempt int) (JobStatus, *ImageResult, error)

// PollObserver receives one call per evaluated attempt.
type PollObserver interface {
	ObservePollAttempt(engine string, status JobStatus)
}

// Poller 为有界的固定间隔轮询循环.
type Poller struct {
	cfg      PollConfig
	sleep    SleepFunc
	observer PollObserver
	logger   *zap.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSleepFunc replaces the inter-attempt delay implementation.
func WithSleepFunc(fn SleepFunc) PollerOption {
	return func(p *Poller) { p.sleep = fn }
}

// WithPollObserver attaches an attempt observer (metrics).
func WithPollObserver(o PollObserver) PollerOption {
	return func(p *Poller) { p.observer = o }
}

// NewPoller creates a poller. Zero config fields fall back to defaults.
func NewPoller(cfg PollConfig, logger *zap.Logger, opts ...PollerOption) *Poller {
	def := DefaultPollConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		cfg:    cfg,
		sleep:  ContextSleep,
		logger: logger.With(zap.String("component", "job_poller")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective poll configuration.
func (p *Poller) Config() PollConfig { return p.cfg }

// Run drives step until it reports ready or failed, the attempts run out,
// or ctx is cancelled. Attempts are strictly sequential; there is no delay
// after a terminal outcome or after the last attempt.
func (p *Poller) Run(ctx context.Context, engine string, step PollStep, progress ProgressFunc) (*ImageResult, error) {
	p.emit(progress, engine, 0, JobSubmitted)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := types.FromContext(ctx); err != nil {
			return nil, err.WithProvider(engine)
		}

		status, result, err := step(ctx, attempt)
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr.WithProvider(engine)
		}
		if p.observer != nil {
			p.observer.ObservePollAttempt(engine, status)
		}
		p.emit(progress, engine, attempt, status)

		switch status {
		case JobReady:
			if result == nil {
				return nil, types.NewError(types.ErrProviderResponse, "poll reported ready without an image").WithProvider(engine)
			}
			p.logger.Debug("job ready",
				zap.String("engine", engine),
				zap.Int("attempt", attempt),
			)
			return result, nil
		case JobFailed:
			if err == nil {
				err = types.NewError(types.ErrJobFailed, "generation failed").WithProvider(engine)
			}
			p.logger.Debug("job failed",
				zap.String("engine", engine),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		case JobMalformed:
			p.logger.Warn("unexpected poll response, retrying",
				zap.String("engine", engine),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		default:
			p.logger.Debug("job still processing",
				zap.String("engine", engine),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.cfg.MaxAttempts),
			)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			return nil, types.NewCancelledError(err).WithProvider(engine)
		}
	}

	p.emit(progress, engine, p.cfg.MaxAttempts, JobTimedOut)
	return nil, types.Errorf(types.ErrTimedOut, "job did not finish after %d attempts", p.cfg.MaxAttempts).
		WithProvider(engine)
}

func (p *Poller) emit(progress ProgressFunc, engine string, attempt int, status JobStatus) {
	if progress == nil {
		return
	}
	progress(ProgressEvent{
		Engine:      engine,
		Attempt:     attempt,
		MaxAttempts: p.cfg.MaxAttempts,
		Status:      status,
	})
}
