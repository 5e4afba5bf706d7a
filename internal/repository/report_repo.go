package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GroupCount 分组计数
type GroupCount struct {
	Key   string `json:"_id"`
	Count int    `json:"count"`
}

// DashboardStats 管理后台首页统计
type DashboardStats struct {
	TotalUsers        int             `json:"totalUsers"`
	TotalCampaigns    int             `json:"totalCampaigns"`
	TotalDonations    int             `json:"totalDonations"`
	TotalAmountRaised decimal.Decimal `json:"totalAmountRaised"`
	CampaignsByStatus []GroupCount    `json:"campaignsByStatus"`
	UsersByRole       []GroupCount    `json:"usersByRole"`
	MonthlySignups    []MonthlyTotal  `json:"monthlySignups"`
}

type ReportRepository struct {
	db *pgxpool.Pool
}

func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

// Dashboard 汇总用户、活动和捐款；since 之后的注册按月统计
func (r *ReportRepository) Dashboard(ctx context.Context, since time.Time) (*DashboardStats, error) {
	var s DashboardStats
	err := r.db.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM users),
               (SELECT COUNT(*) FROM campaigns),
               (SELECT COUNT(*) FROM donations WHERE payment_status = 'succeeded'),
               (SELECT COALESCE(SUM(amount), 0) FROM donations WHERE payment_status = 'succeeded')
    `).Scan(&s.TotalUsers, &s.TotalCampaigns, &s.TotalDonations, &s.TotalAmountRaised)
	if err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}

	if s.CampaignsByStatus, err = r.groupCounts(ctx, `SELECT status, COUNT(*) FROM campaigns GROUP BY status ORDER BY status`); err != nil {
		return nil, fmt.Errorf("campaigns by status: %w", err)
	}
	if s.UsersByRole, err = r.groupCounts(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role`); err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}

	rows, err := r.db.Query(ctx, `
        SELECT EXTRACT(YEAR FROM created_at)::int, EXTRACT(MONTH FROM created_at)::int, COUNT(*)
        FROM users
        WHERE created_at >= $1
        GROUP BY 1, 2
        ORDER BY 1, 2
    `, since)
	if err != nil {
		return nil, fmt.Errorf("monthly signups: %w", err)
	}
	defer rows.Close()

	s.MonthlySignups = []MonthlyTotal{}
	for rows.Next() {
		var m MonthlyTotal
		if err := rows.Scan(&m.Year, &m.Month, &m.Count); err != nil {
			return nil, err
		}
		s.MonthlySignups = append(s.MonthlySignups, m)
	}
	return &s, rows.Err()
}

func (r *ReportRepository) groupCounts(ctx context.Context, sql string) ([]GroupCount, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GroupCount{}
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const dashboardCacheKey = "admin:stats:dashboard"

// StatsCache 把 Dashboard 结果缓存在 Redis 中；Redis 不可用时直接查库
type StatsCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewStatsCache(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatsCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *StatsCache) Dashboard(ctx context.Context, load func(context.Context) (*DashboardStats, error)) (*DashboardStats, error) {
	raw, err := c.rdb.Get(ctx, dashboardCacheKey).Bytes()
	switch {
	case err == nil:
		var s DashboardStats
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			return &s, nil
		}
		c.logger.Warn("Discarding corrupt dashboard cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Dashboard cache read failed, querying database", zap.Error(err))
	}

	s, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, dashboardCacheKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("Dashboard cache write failed", zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate 捐款确认后可调用，让下一次请求重新统计
func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, dashboardCacheKey).Err()
}

// CachedReports 组合 ReportRepository 和 StatsCache；cache 为 nil 时直接查库
type CachedReports struct {
	reports *ReportRepository
	cache   *StatsCache
}

func NewCachedReports(reports *ReportRepository, cache *StatsCache) *CachedReports {
	return &CachedReports{reports: reports, cache: cache}
}

func (c *CachedReports) Dashboard(ctx context.Context, since time.Time) (*DashboardStats, error) {
	load := func(ctx context.Context) (*DashboardStats, error) {
		return c.reports.Dashboard(ctx, since)
	}
	if c.cache == nil {
		return load(ctx)
	}
	return c.cache.Dashboard(ctx, load)
}
