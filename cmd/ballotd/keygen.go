package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"blind-voting/service"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create the election authority key, or print the existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			key, err := service.LoadOrGenerateAuthorityKey(cfg.dataDir, cfg.keyOptions())
			if err != nil {
				return err
			}
			pub, err := json.MarshalIndent(key.PublicKey, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n%s\n", key.Fingerprint().Hex(), pub)
			return nil
		},
	}
}
