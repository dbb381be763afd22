package cmd

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/script"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newValidateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and behavior catalog without starting the pet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := zap.NewNop()
			catalog, err := buildCatalog(cfg, script.NewEngine(cfg.Script.Timeout, logger), logger)
			if err != nil {
				var ce *behavior.ConfigError
				if errors.As(err, &ce) {
					for _, p := range ce.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), "  -", p)
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d behaviors %v, fallback %q\n",
				catalog.Len(), catalog.IDs(), catalog.FallbackID())
			return nil
		},
	}
}

// buildCatalog registers the built-ins (when enabled) and then the catalog
// file, and seals the result.
func buildCatalog(cfg *config.Config, engine *script.Engine, logger *zap.Logger) (*behavior.Catalog, error) {
	catalog := behavior.NewCatalog(cfg.Sim.FallbackID)
	if cfg.Catalog.Builtins {
		for _, def := range behavior.Builtins() {
			_ = catalog.Register(def)
		}
	}
	if cfg.Catalog.Path != "" {
		if err := catalog.LoadFile(cfg.Catalog.Path, engine, logger); err != nil {
			return nil, err
		}
	}
	if err := catalog.Seal(); err != nil {
		return nil, err
	}
	return catalog, nil
}
