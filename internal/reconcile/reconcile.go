// Package reconcile checks campaign totals against the donation ledger and
// expires campaigns whose deadline has passed.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/repository"
	"crowdfundin/pkg/metrics"
)

type CampaignStore interface {
	FindDrift(ctx context.Context) ([]repository.Drift, error)
	FixDrift(ctx context.Context, id uuid.UUID) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Report 单次运行结果
type Report struct {
	Drift   []repository.Drift
	Fixed   int
	Expired int64
}

type Job struct {
	campaigns CampaignStore
	fix       bool
	interval  time.Duration
	logger    *zap.Logger

	now func() time.Time
}

func NewJob(campaigns CampaignStore, logger *zap.Logger) *Job {
	return &Job{
		campaigns: campaigns,
		interval:  10 * time.Minute,
		logger:    logger,
		now:       time.Now,
	}
}

// WithFix 发现不一致时以捐款流水为准修正
func (j *Job) WithFix(fix bool) *Job {
	j.fix = fix
	return j
}

func (j *Job) WithInterval(interval time.Duration) *Job {
	if interval > 0 {
		j.interval = interval
	}
	return j
}

// RunOnce 对账一次；修正失败的活动只记录日志，不中断其他活动
func (j *Job) RunOnce(ctx context.Context) (*Report, error) {
	drift, err := j.campaigns.FindDrift(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SetReconcileDrift(len(drift))

	r := &Report{Drift: drift}
	for _, d := range drift {
		j.logger.Warn("Campaign total disagrees with donation ledger",
			zap.String("campaign_id", d.CampaignID.String()),
			zap.String("current_amount", d.CurrentAmount.String()),
			zap.String("ledger_amount", d.LedgerAmount.String()),
		)
		if !j.fix {
			continue
		}
		if err := j.campaigns.FixDrift(ctx, d.CampaignID); err != nil {
			j.logger.Error("Failed to fix campaign drift",
				zap.String("campaign_id", d.CampaignID.String()),
				zap.Error(err),
			)
			continue
		}
		r.Fixed++
	}

	r.Expired, err = j.campaigns.ExpireOverdue(ctx, j.now())
	if err != nil {
		return r, fmt.Errorf("expire overdue: %w", err)
	}
	if r.Expired > 0 {
		j.logger.Info("Expired overdue campaigns", zap.Int64("count", r.Expired))
	}
	return r, nil
}

// Start 周期性运行（阻塞，ctx 取消后返回）
func (j *Job) Start(ctx context.Context) {
	j.logger.Info("Starting reconcile job",
		zap.Duration("interval", j.interval),
		zap.Bool("fix", j.fix),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Reconcile job stopped")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("Reconcile run failed", zap.Error(err))
			}
		}
	}
}
