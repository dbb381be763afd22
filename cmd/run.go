package cmd

import (
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(load func() (*config.Config, error), path func() string) *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pet until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if headless {
				cfg.Server.Bridge = false
			}
			logger, err := logging.New(cfg.Logger, cfg.Server.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger.Info("starting petd", zap.String("version", Version), zap.String("config", path()))

			a, err := newApp(cmd.Context(), cfg, path(), logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer a.close()
			return a.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the overlay bridge")
	return cmd
}
