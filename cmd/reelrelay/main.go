package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ReelRelay/internal/app"
	"ReelRelay/internal/config"
	"ReelRelay/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type runtime struct {
	configPath string
	cfg        config.Config
	logger     zerolog.Logger
}

func newRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "reelrelay",
		Short:         "Republish trending short videos to a Facebook page",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newRunOnceCommand(rt),
		newStartCommand(rt),
		newStatsCommand(rt),
		newValidateCommand(rt),
	)
	return root
}

// open builds the application and hands it to fn, closing it afterwards.
func (rt *runtime) open(ctx context.Context, fn func(*app.Application) error) error {
	application, err := app.New(ctx, rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close store")
		}
	}()
	return fn(application)
}
