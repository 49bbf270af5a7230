// Command hub runs the CapyDeploy Hub: a headless service that discovers
// Agents on the LAN via mDNS, manages connections to them, and drives game
// uploads and SteamGridDB artwork lookups.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lobinuxsoft/capydeploy/apps/hub/hubapp"
	"github.com/lobinuxsoft/capydeploy/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "hub",
		Short:        "Run the CapyDeploy Hub",
		Version:      version.Full(),
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.Bool("verbose", false, "enable verbose logging")
	flags.String("config", "", "path to a config file (optional)")
	v.BindPFlag("verbose", flags.Lookup("verbose"))
	v.BindPFlag("config", flags.Lookup("config"))
	v.SetEnvPrefix("CAPYDEPLOY_HUB")
	v.AutomaticEnv()

	cmd.AddCommand(newServeCmd(v), newPairCmd(v), newUploadCmd(v))
	return cmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover and manage Agents until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	flags := cmd.Flags()
	flags.Bool("auto-connect", true, "connect to every discovered Agent automatically")
	flags.String("http-addr", "127.0.0.1:8765", "address for the metrics and cached-artwork HTTP server")
	v.BindPFlag("auto-connect", flags.Lookup("auto-connect"))
	v.BindPFlag("http-addr", flags.Lookup("http-addr"))
	return cmd
}

func newPairCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <agent-id> <code>",
		Short: "Confirm pairing with an Agent using its displayed code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(v)
			svc, err := hubapp.NewService(logger)
			if err != nil {
				return err
			}
			return svc.ConfirmPairing(cmd.Context(), args[0], args[1])
		},
	}
}

func newUploadCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <agent-id> <setup-id>",
		Short: "Upload a saved game setup to a connected Agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(v)
			svc, err := hubapp.NewService(logger)
			if err != nil {
				return err
			}
			return svc.UploadGame(cmd.Context(), args[0], args[1])
		},
	}
}

func newLogger(v *viper.Viper) *slog.Logger {
	level := slog.LevelInfo
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger := newLogger(v)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := hubapp.NewService(logger)
	if err != nil {
		return fmt.Errorf("create hub service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx, v.GetBool("auto-connect"))
	})
	g.Go(func() error {
		return svc.ServeHTTP(gctx, v.GetString("http-addr"))
	})

	return g.Wait()
}
