package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

const DefaultPollExpiryCron = "* * * * *"

type PollCloser interface {
	CloseExpired(ctx context.Context) ([]string, error)
}

// PollExpiryJob closes expired polls on a cron schedule
type PollExpiryJob struct {
	closer   PollCloser
	cronExpr string
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPollExpiryJob(closer PollCloser, cronExpr string, logger *zap.Logger) (*PollExpiryJob, error) {
	if cronExpr == "" {
		cronExpr = DefaultPollExpiryCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid poll expiry cron expression: %s", cronExpr)
	}
	return &PollExpiryJob{
		closer:   closer,
		cronExpr: cronExpr,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RunOnce closes every expired poll and returns how many were closed
func (pj *PollExpiryJob) RunOnce(ctx context.Context) (int, error) {
	closed, err := pj.closer.CloseExpired(ctx)
	if err != nil {
		return 0, err
	}
	if len(closed) > 0 {
		pj.logger.Info("closed expired polls", zap.Strings("pollIds", closed))
	}
	return len(closed), nil
}

// NextRun is the first scheduled run strictly after t
func (pj *PollExpiryJob) NextRun(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(pj.cronExpr, t.UTC(), false)
}

func (pj *PollExpiryJob) Start(ctx context.Context) {
	pj.mu.Lock()
	defer pj.mu.Unlock()
	if pj.cancel != nil {
		return
	}
	ctx, pj.cancel = context.WithCancel(ctx)
	pj.done = make(chan struct{})
	go pj.runScheduler(ctx, pj.done)
	pj.logger.Info("poll expiry scheduler started", zap.String("cron", pj.cronExpr))
}

func (pj *PollExpiryJob) Stop() {
	pj.mu.Lock()
	cancel, done := pj.cancel, pj.done
	pj.cancel, pj.done = nil, nil
	pj.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (pj *PollExpiryJob) runScheduler(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		next, err := pj.NextRun(pj.now())
		wait := time.Until(next)
		if err != nil {
			pj.logger.Error("failed to compute next poll expiry run", zap.Error(err))
			wait = 30 * time.Second
		}
		if wait < time.Second {
			// avoid a tight loop when the tick is due now
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			if err == nil {
				if _, err := pj.RunOnce(ctx); err != nil {
					pj.logger.Error("poll expiry run failed", zap.Error(err))
				}
			}
		case <-ctx.Done():
			pj.logger.Info("poll expiry scheduler stopping")
			return
		}
	}
}
