package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/desktoppet/config"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"github.com/spf13/cobra"
)

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		client string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an overlay client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return errors.New("security.jwt_secret is not set; bridge auth is disabled")
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWTTTLH
			}
			tok, err := mw.GenerateToken(client, cfg.Security.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "overlay", "client name stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt_ttl_h)")
	return cmd
}
