package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackbot-deployment/internal/models"
	"stackbot-deployment/internal/trigger"
)

type evaluateOptions struct {
	configPath string
	branch     string
	issuer     string
	state      string
}

// newEvaluateCmd checks a status event against a local repository config
// without touching Docker Cloud or GitHub.
func newEvaluateCmd() *cobra.Command {
	opts := evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Show whether a status event would trigger a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(opts.configPath)
			if err != nil {
				return err
			}
			cfg, err := models.ParseRepoConfig(data)
			if err != nil {
				return err
			}

			event := models.Event{
				Kind:       models.StatusChange,
				BranchName: opts.branch,
				IssuerKey:  opts.issuer,
				State:      opts.state,
			}
			d := trigger.Evaluate(event, cfg.Policy())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "branch allowed: %t\n", d.BranchAllowed)
			fmt.Fprintf(out, "issuer allowed: %t\n", d.IssuerAllowed)
			fmt.Fprintf(out, "state matches:  %t\n", d.StateMatches)
			fmt.Fprintf(out, "trigger:        %t\n", d.Admitted())
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", ".github/"+models.ConfigFileName, "Path to the repository config file")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "Branch name of the status event")
	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "Status context that issued the event")
	cmd.Flags().StringVar(&opts.state, "state", "success", "Status state")
	cmd.MarkFlagRequired("branch")
	return cmd
}
