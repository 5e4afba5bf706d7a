package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfundin/internal/config"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/otel"
)

var Version = "dev"

var (
	envName   string
	configDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "crowdfund",
		Short:         "CrowdFundIn API server, notification worker and maintenance tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultEnv := os.Getenv("APP_ENV")
	if defaultEnv == "" {
		defaultEnv = "local"
	}
	rootCmd.PersistentFlags().StringVar(&envName, "env", defaultEnv, "config environment (local, prod)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding base.yaml and <env>.yaml")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime 每个子命令共用的配置、日志和追踪
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	shutdown func()
}

func bootstrap(component string) (*runtime, error) {
	cfg, err := config.Load(envName, configDir)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger().With(zap.String("component", component))

	otelCfg := cfg.Otel
	otelCfg.ServiceName = cfg.Otel.ServiceName + "-" + component
	shutdown, err := otel.Init(otelCfg, log)
	if err != nil {
		// 追踪不可用不影响主流程
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
		shutdown = func() {}
	}

	log.Info("Configuration loaded",
		zap.String("env", envName),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("redis_addr", cfg.Redis.Addr),
	)
	return &runtime{cfg: cfg, log: log, shutdown: shutdown}, nil
}

func (r *runtime) close() {
	r.shutdown()
	_ = r.log.Sync()
}
