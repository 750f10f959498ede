package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/goalseek/internal/config"
	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
)

func newCheckCmd() *cobra.Command {
	var goalPath, configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a goal definition without running it",
		Long: `Validate a goal definition and print the engine config it resolves to.

Examples:
  goalseek check -f goal.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return &exitError{code: goalseek.ExitError, err: err}
			}
			goal, err := config.LoadGoal(goalPath)
			if err != nil {
				return &exitError{code: goalseek.ExitError, err: err}
			}
			seekCfg, err := goal.EngineConfig(cfg.Executor)
			if err != nil {
				return &exitError{code: goalseek.ExitError, err: err}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(seekCfg)
		},
	}

	cmd.Flags().StringVarP(&goalPath, "file", "f", "", "goal definition (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&configPath, "config", "", "application config file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
