// Package cmd wires the luminate command line: the API server and the learner commands that
// talk to it.
package cmd

import (
	"luminate/backend/config"

	"github.com/spf13/cobra"
)

// NewRootCmd builds a fresh command tree, so tests can run commands in isolation.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "luminate",
		Short:         "Track what you are learning",
		Long:          "Luminate serves a topic catalog and tracks your progress through it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("api", "", "API base URL (overrides LUMINATE_API_URL)")
	root.PersistentFlags().String("session-file", "", "Where the signed-in session is kept (overrides LUMINATE_SESSION_FILE)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newSignupCmd())
	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newWhoamiCmd())
	root.AddCommand(newTopicsCmd())
	root.AddCommand(newTopicCmd())
	root.AddCommand(newProgressCmd())
	root.AddCommand(newDashboardCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the environment and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("api"); v != "" {
		cfg.APIBaseURL = v
	}
	if v, _ := cmd.Flags().GetString("session-file"); v != "" {
		cfg.SessionFile = v
	}
	return cfg, nil
}
