package commands

import (
	"github.com/spf13/cobra"

	"github.com/curb-dev/curb/internal/buildinfo"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	dir  string
	user string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "curb",
		Short:   "Spot spending habits, cap them and track what you saved",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "curb project directory")
	rootCmd.PersistentFlags().StringVar(&opts.user, "user", "", "user key (default from curb.yaml)")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newAddCommand(opts),
		newImportCommand(opts),
		newListCommand(opts),
		newDeleteCommand(opts),
		newAlertsCommand(opts),
		newSavingsCommand(opts),
		newAdviseCommand(opts),
		newActivityCommand(opts),
	)

	return rootCmd
}
