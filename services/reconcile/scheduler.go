// Package reconcile periodically reruns the course rollups the request path could not finish.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/tracker"
)

const passTimeout = 4 * time.Minute

type (
	Reconciler interface {
		Reconcile(ctx context.Context, batchSize int) (tracker.ReconcileReport, error)
	}

	Scheduler struct {
		cron       *cron.Cron
		reconciler Reconciler
		logger     core.Logger
		batchSize  int
	}
)

func NewScheduler(conf *core.Config, logger core.Logger, reconciler Reconciler) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		logger:     logger,
		batchSize:  conf.Reconcile.BatchSize,
	}
	if _, err := s.cron.AddFunc(conf.Reconcile.Schedule, s.run); err != nil {
		return nil, errors.Wrapf(err, "scheduling reconciliation %q", conf.Reconcile.Schedule)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running pass, until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single reconciliation pass.
func (s *Scheduler) RunOnce(ctx context.Context) (tracker.ReconcileReport, error) {
	report, err := s.reconciler.Reconcile(ctx, s.batchSize)
	if err != nil {
		msg := fmt.Sprintf("reconciliation failed after %d enrollments: %v", report.Checked, err)
		s.logger.Error(msg, errors.Wrap(err, "reconciling"))
		return report, err
	}

	msg := fmt.Sprintf(
		"reconciled %d enrollments: %d completed, %d certificates issued, %d failed",
		report.Checked, report.Completed, report.Certificates, report.Failed,
	)
	if report.Failed > 0 {
		s.logger.Warn(msg)
	} else {
		s.logger.Debug(msg)
	}
	return report, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}
