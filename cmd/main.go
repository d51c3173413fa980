package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BandwidthOnDemand/nsi-auth/internal/appcontext"
	"github.com/BandwidthOnDemand/nsi-auth/internal/config"
	"github.com/BandwidthOnDemand/nsi-auth/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "nsi-auth",
		Short: "Verify the client certificate subject DN against a list of allowed DN's.",
		Long: `nsi-auth answers authorization sub-requests from a TLS terminating proxy.
The proxy forwards the client certificate subject DN in a request header,
GET /validate answers 200 when the DN is in the allowed list and 403 otherwise.
The allowed list is reloaded automatically when its file changes.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cf, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cf)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (.env, .yaml, .toml or .json)")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cf *config.Config) error {
	root := logger.New(os.Stdout, cf.LogLevel, cf.LogFormat)

	app, err := appcontext.NewApplicationContext(cf, root)
	if err != nil {
		root.Error().Err(err).Msg("application setup failed")
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 設置訊號監聽, SIGHUP 重新載入清單
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go handleSignals(ctx, sigChan, app, cancel, app.Logger)

	if err := app.Run(ctx); err != nil {
		root.Error().Err(err).Msg("application stopped with error")
		return err
	}
	app.Logger.Info().Msg("closed completed")
	return nil
}

type reloader interface {
	Reload() error
}

// handleSignals SIGHUP 重新載入清單, 其餘訊號呼叫 cancel 觸發優雅關閉
func handleSignals(ctx context.Context, sigChan <-chan os.Signal, app reloader, cancel context.CancelFunc, appLogger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				appLogger.Info().Msg("Received reload signal")
				_ = app.Reload()
				continue
			}
			appLogger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
			return
		}
	}
}
