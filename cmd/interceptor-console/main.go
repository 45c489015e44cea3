package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gautamrajesh007/Interceptor/internal/app"
	"github.com/gautamrajesh007/Interceptor/internal/config"
	"github.com/gautamrajesh007/Interceptor/internal/logger"
	"github.com/gautamrajesh007/Interceptor/internal/version"
)

var (
	configPath string
	serverURL  string
	logLevel   string
	username   string
)

func init() {
	rootCmd.AddCommand(versionCmd, loginCmd, logoutCmd)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "backend base URL (overrides server.base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides logger.level)")
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "operator username (prompted when empty)")
}

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of interceptor-console",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("interceptor-console version %s\n", version.Get())
		},
	}

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session for the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), login)
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.reconcile.Logout(ctx); err != nil {
					return fmt.Errorf("clearing session: %w", err)
				}
				fmt.Println("Signed out.")
				return nil
			})
		},
	}

	rootCmd = &cobra.Command{
		Use:   "interceptor-console",
		Short: "Operator console for the query interceptor",
		Long:  `interceptor-console shows blocked queries as they are intercepted and lets operators approve, reject or vote on them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), runConsole)
		},
	}
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
		cfg.Server.PushURL = config.PushURLFor(serverURL)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *runtime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func runConsole(ctx context.Context, rt *runtime) error {
	rt.serveMetrics()
	rt.logger.Info("console starting",
		zap.String("server", rt.cfg.Server.BaseURL),
		zap.String("version", version.Get()))

	rt.reconcile.Resume(ctx)

	m := app.New(rt.reconcile, rt.bus)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}

func login(ctx context.Context, rt *runtime) error {
	user := strings.TrimSpace(username)
	if user == "" {
		fmt.Print("Username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		user = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	token, u, err := rt.api.Login(ctx, user, string(pw))
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	if err := rt.session.Set(ctx, token, u); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	fmt.Printf("Signed in as %s (%s).\n", u.Username, u.Role)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
