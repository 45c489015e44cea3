package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/config"
	"github.com/gautamrajesh007/Interceptor/internal/logger"
	"github.com/gautamrajesh007/Interceptor/internal/mockserver"
	"github.com/gautamrajesh007/Interceptor/internal/version"
)

var (
	configPath string
	addr       string
	interval   time.Duration
	origins    []string
	logLevel   string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "address to listen on (overrides mock.addr)")
	rootCmd.Flags().DurationVar(&interval, "interval", -1, "blocked query interval, 0 disables the generator (overrides mock.block_interval)")
	rootCmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "allowed WebSocket origins")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides logger.level)")
}

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of interceptor-mock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("interceptor-mock version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "interceptor-mock",
		Short: "Mock interceptor backend",
		Long:  `interceptor-mock serves the interceptor REST API and STOMP push topics from memory, with a generator that blocks sample statements.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Mock.Addr = addr
	}
	if interval >= 0 {
		cfg.Mock.BlockInterval = interval
	}
	lcfg := cfg.Logger
	lcfg.Output = "stdout"
	if logLevel != "" {
		lcfg.Level = logLevel
	}
	log, err := logger.New(lcfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	srv, err := mockserver.New(cfg.Mock, log, nil)
	if err != nil {
		return err
	}
	srv.AllowOrigins(origins)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := mockserver.NewGenerator(srv, cfg.Mock.BlockInterval, cfg.Mock.QueryTTL, nil)
	gen.Start(ctx)

	httpServer := &http.Server{Addr: cfg.Mock.Addr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		log.Info("mock backend listening",
			zap.String("addr", cfg.Mock.Addr),
			zap.Duration("block_interval", cfg.Mock.BlockInterval))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	srv.Broker().DropAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
