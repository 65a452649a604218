package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an experiment config without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			agents := 0
			for _, g := range cfg.Agents {
				agents += g.Count
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s, %d agents, %d turns\n", cfg.Name, agents, cfg.Turns)
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}
