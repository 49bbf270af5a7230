// Command agent runs the CapyDeploy Agent: a headless service that
// advertises itself over mDNS and accepts a single paired Hub connection.
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

	agentapp "github.com/lobinuxsoft/capydeploy/apps/agents/desktop"
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
		Use:          "agent",
		Short:        "Run the CapyDeploy Agent",
		Version:      version.Full(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 0, "port to listen on (0 = OS-assigned dynamic port)")
	flags.Bool("verbose", false, "enable verbose logging")
	flags.String("config", "", "path to a config file (optional)")

	v.BindPFlag("port", flags.Lookup("port"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))
	v.BindPFlag("config", flags.Lookup("config"))
	v.SetEnvPrefix("CAPYDEPLOY_AGENT")
	v.AutomaticEnv()

	return cmd
}

func runAgent(ctx context.Context, v *viper.Viper) error {
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := slog.LevelInfo
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := agentapp.NewService(logger, v.GetInt("port"))
	return svc.Run(ctx)
}
