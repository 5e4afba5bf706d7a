package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	contracts "crowdfundin/contracts/mq"
	"crowdfundin/internal/mqhandler"
	"crowdfundin/internal/notify"
	"crowdfundin/internal/reconcile"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/service/notification"
	"crowdfundin/pkg/db"
	"crowdfundin/pkg/mq"
	redisclient "crowdfundin/pkg/redis"
	"crowdfundin/pkg/util"
)

// subscription 一个队列绑定一个 routing key
type subscription struct {
	queue      string
	routingKey string
	handle     mq.MessageHandler
}

func workerCmd() *cobra.Command {
	var fixDrift bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume donation events, send notification emails and run periodic reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(fixDrift)
		},
	}
	cmd.Flags().BoolVar(&fixDrift, "fix-drift", false, "correct campaign totals that disagree with the donation ledger")
	return cmd
}

func runWorker(fixDrift bool) error {
	rt, err := bootstrap("worker")
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, log := rt.cfg, rt.log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer pool.Close()

	// 去重和重试计数依赖 Redis，worker 没有 Redis 不能启动
	rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retries := util.NewRetryCounter(rdb, cfg.Worker.DedupTTL)
	stats := repository.NewStatsCache(rdb, cfg.StatsCacheTTL, log)

	campaignRepo := repository.NewCampaignRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	mailer, err := notify.NewMailer(cfg.Email, log)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	notifications := notification.NewService(
		campaignRepo,
		userRepo,
		repository.NewNotificationSettingsRepository(pool),
		notify.NewNotifier(mailer, cfg.Email.Concurrency, log),
		cfg.FrontendURL,
		log,
	)

	subs := []subscription{
		{
			queue:      "donation.confirmed.email.q",
			routingKey: contracts.RoutingKeyDonationConfirmed,
			handle:     mqhandler.NewDonationConfirmedHandler(notifications, stats, deduper, log).Handle,
		},
		{
			queue:      "campaign.milestone.notify.q",
			routingKey: contracts.RoutingKeyCampaignMilestone,
			handle:     mqhandler.NewMilestoneHandler(notifications, deduper, log).Handle,
		},
		{
			queue:      "campaign.completed.notify.q",
			routingKey: contracts.RoutingKeyCampaignCompleted,
			handle:     mqhandler.NewCampaignCompletedHandler(notifications, deduper, log).Handle,
		},
	}

	consumers := make([]*mq.Consumer, 0, len(subs))
	defer func() {
		for _, c := range consumers {
			c.Stop()
		}
	}()
	for _, s := range subs {
		log.Info("Initializing MQ consumer",
			zap.String("queue", s.queue),
			zap.String("routing_key", s.routingKey),
		)
		c, err := mq.NewConsumer(cfg.MQ.URL, s.queue, s.routingKey, log)
		if err != nil {
			return fmt.Errorf("init consumer %s: %w", s.queue, err)
		}
		c.WithRetry(retries, cfg.Worker.MaxRetries).SetHandler(s.handle)
		consumers = append(consumers, c)
	}

	job := reconcile.NewJob(campaignRepo, log).
		WithFix(fixDrift).
		WithInterval(cfg.Worker.ReconcileInterval)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error {
			return c.StartConsuming(gctx)
		})
	}
	g.Go(func() error {
		job.Start(gctx)
		return nil
	})

	log.Info("Worker is ready to process messages", zap.Int("consumers", len(consumers)))

	err = g.Wait()
	log.Info("Worker shutdown complete")
	return err
}
