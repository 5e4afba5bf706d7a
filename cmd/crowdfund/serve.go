package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfundin/internal/handler"
	"crowdfundin/internal/httpserver"
	"crowdfundin/internal/notify"
	"crowdfundin/internal/payment"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/service/auth"
	"crowdfundin/internal/service/campaign"
	"crowdfundin/internal/service/comment"
	"crowdfundin/internal/service/complaint"
	"crowdfundin/internal/service/donation"
	"crowdfundin/internal/service/moderation"
	"crowdfundin/internal/service/notification"
	"crowdfundin/pkg/db"
	"crowdfundin/pkg/mq"
	"crowdfundin/pkg/outbox"
	redisclient "crowdfundin/pkg/redis"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(migrate bool) error {
	rt, err := bootstrap("api")
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, log := rt.cfg, rt.log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer pool.Close()

	if migrate {
		if _, err := db.Migrate(ctx, pool, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Redis 只用于统计缓存，连不上时降级为直接查库
	var stats *repository.StatsCache
	if rdb, err := redisclient.NewRedisClient(cfg.Redis, log); err != nil {
		log.Warn("Redis unavailable, admin stats will not be cached", zap.Error(err))
	} else {
		defer rdb.Close()
		stats = repository.NewStatsCache(rdb, cfg.StatsCacheTTL, log)
	}

	// RabbitMQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer publisher.Close()

	// Repositories
	userRepo := repository.NewUserRepository(pool)
	campaignRepo := repository.NewCampaignRepository(pool)
	donationRepo := repository.NewDonationRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	complaintRepo := repository.NewComplaintRepository(pool)
	reports := repository.NewCachedReports(repository.NewReportRepository(pool), stats)
	outboxRepo := outbox.NewRepository(pool)

	mailer, err := notify.NewMailer(cfg.Email, log)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	notifier := notify.NewNotifier(mailer, cfg.Email.Concurrency, log)

	if !cfg.Razorpay.Configured() {
		log.Warn("Razorpay keys are not configured, payment endpoints will return errors")
	}
	gateway := payment.NewClient(cfg.Razorpay, log)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	campaignService := campaign.NewService(campaignRepo, log)
	donationService := donation.NewService(
		campaignRepo,
		donationRepo,
		orderRepo,
		gateway,
		db.NewTxRunner(pool),
		outboxRepo,
		cfg.Razorpay.KeySecret,
		log,
	)
	commentService := comment.NewService(commentRepo, campaignRepo, log)
	complaintService := complaint.NewService(complaintRepo, campaignRepo, log)
	moderationService := moderation.NewService(userRepo, campaignRepo, complaintRepo, reports, log)
	notificationService := notification.NewService(
		campaignRepo,
		userRepo,
		repository.NewNotificationSettingsRepository(pool),
		notifier,
		cfg.FrontendURL,
		log,
	)
	replay := outbox.NewReplayService(outboxRepo, publisher, log)

	// Handlers
	handler.UseJSONFieldNames()
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:         handler.NewAuthHandler(authService, log),
		Campaign:     handler.NewCampaignHandler(campaignService, log),
		Donation:     handler.NewDonationHandler(donationService, log),
		Comment:      handler.NewCommentHandler(commentService, log),
		Complaint:    handler.NewComplaintHandler(complaintService, log),
		Notification: handler.NewNotificationHandler(notificationService, log),
		Admin:        handler.NewAdminHandler(moderationService, donationService, replay, log),
	}, userRepo, cfg.JWT.Secret, pool, cfg.Otel.ServiceName, log)

	// Outbox dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-dispatcherDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	// 优雅退出
	log.Info("Shutting down API gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
	<-dispatcherDone

	log.Info("API shutdown complete")
	return nil
}
