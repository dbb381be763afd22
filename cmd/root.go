// Package cmd is the petd command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kasuganosora/desktoppet/config"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// NewRootCmd builds a fresh command tree, so tests never share flag state.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "petd",
		Short:         "Desktop pet behavior daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/petd.yaml", "config file (missing file means defaults)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	load := func() (*config.Config, error) { return config.Load(cfgFile) }
	path := func() string { return cfgFile }

	root.AddCommand(
		newRunCmd(load, path),
		newValidateCmd(load),
		newSchemaCmd(),
		newTokenCmd(load),
	)
	return root
}

// Execute runs the command tree with ctx and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "petd:", err)
		os.Exit(1)
	}
}
