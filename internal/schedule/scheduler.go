package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work, such as a corpus reindex. Runs never
// overlap: a tick arriving while the previous run is still going is
// skipped, not queued.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler drives jobs from standard 5-field crontab specs.
type CronScheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{cron: cron.New(cron.WithParser(parser))}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	if _, err := c.cron.AddFunc(spec, c.runGuarded(job)); err != nil {
		return fmt.Errorf("schedule %s with spec %q: %w", job.Name(), spec, err)
	}
	logutil.GetLogger(context.Background()).Info("cron job registered",
		zap.String("name", job.Name()), zap.String("spec", spec))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

// Stop waits for in-flight runs to finish before returning.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) runGuarded(job Job) func() {
	var inFlight atomic.Bool
	return func() {
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		logger := logutil.GetLogger(ctx).With(zap.String("name", job.Name()))
		if !inFlight.CompareAndSwap(false, true) {
			logger.Info("cron tick skipped, previous run still in flight")
			return
		}
		defer inFlight.Store(false)

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.Error("cron job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		logger.Info("cron job done", zap.Duration("took", time.Since(start)))
	}
}
