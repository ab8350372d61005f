package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs maintenance jobs on standard 5-field cron specs. A job
// still running when its next tick fires is skipped, never overlapped.
type CronScheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	runner := &jobRunner{scheduler: c, job: job, spec: spec}
	if _, err := c.cron.AddJob(spec, runner); err != nil {
		return err
	}
	logutil.GetLogger(context.Background()).Info("cron job registered",
		zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.baseCtx = ctx
	c.cron.Start()
}

// Stop halts scheduling and waits for any in-flight job to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

type jobRunner struct {
	scheduler *CronScheduler
	job       Job
	spec      string
	busy      sync.Mutex
}

func (r *jobRunner) Run() {
	ctx := r.scheduler.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job", r.job.Name()), zap.String("spec", r.spec))
	if !r.busy.TryLock() {
		logger.Warn("cron tick skipped, previous run still active")
		return
	}
	defer r.busy.Unlock()

	start := time.Now()
	if err := r.job.Run(ctx); err != nil {
		logger.Error("cron job failed", zap.Error(err), zap.Duration("cost", time.Since(start)))
		return
	}
	logger.Info("cron job done", zap.Duration("cost", time.Since(start)))
}
