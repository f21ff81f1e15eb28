// Package worker runs background jobs on a cron schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// BreachSource checks every tracked ticket for newly missed SLA targets.
type BreachSource interface {
	PollBreaches(ctx context.Context, now time.Time) ([]service.BreachReport, error)
	Now() time.Time
}

// BreachPoller periodically asks its source to detect breaches. A run that
// overlaps the previous one is skipped.
type BreachPoller struct {
	cron    *cron.Cron
	source  BreachSource
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
}

// NewBreachPoller schedules polling with a standard five-field cron
// expression or a descriptor such as "@every 1m".
func NewBreachPoller(source BreachSource, schedule string, timeout time.Duration, logger *zap.Logger) (*BreachPoller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &BreachPoller{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		source:  source,
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
	if _, err := p.cron.AddFunc(schedule, func() { p.RunOnce(p.ctx) }); err != nil {
		return nil, fmt.Errorf("worker: invalid breach poll schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start runs the schedule until ctx is cancelled and waits for an in-flight
// poll to finish.
func (p *BreachPoller) Start(ctx context.Context) error {
	p.ctx = ctx
	p.cron.Start()
	p.logger.Info("breach poller started")

	<-ctx.Done()
	<-p.cron.Stop().Done()
	p.logger.Info("breach poller stopped")
	return ctx.Err()
}

// RunOnce performs a single poll and returns how many tickets newly breached.
func (p *BreachPoller) RunOnce(ctx context.Context) int {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	started := time.Now()
	reports, err := p.source.PollBreaches(ctx, p.source.Now())
	if err != nil {
		p.logger.Warn("breach poll incomplete", zap.Error(err))
	}
	p.logger.Debug("breach poll finished",
		zap.Int("breached_tickets", len(reports)),
		zap.Duration("took", time.Since(started)))
	return len(reports)
}
