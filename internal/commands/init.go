package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/curb-dev/curb/internal/config"
	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/store"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new curb project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			user := opts.user
			if user == "" {
				user = "guest"
			}
			if err := runInit(absDir, user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized curb project at %s\n", absDir)
			return nil
		},
	}

	return cmd
}

func runInit(dir, user string) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists in %s", config.FileName, dir)
	}

	// Create directory structure.
	dirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write curb.yaml.
	cfg := config.Default()
	cfg.User = user
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Create the database and apply migrations.
	db, err := store.OpenSQLite(filepath.Join(dir, cfg.Database), logging.Discard())
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	// Write .gitignore.
	gitignore := cfg.Database + "\nlogs/\nimport/processed/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	// Write import/.gitkeep.
	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	return nil
}
