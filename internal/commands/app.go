package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/curb-dev/curb/internal/activity"
	"github.com/curb-dev/curb/internal/advisory"
	"github.com/curb-dev/curb/internal/config"
	"github.com/curb-dev/curb/internal/engine"
	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/store"
)

// app is everything a subcommand needs, opened from the project directory.
type app struct {
	root    string
	cfg     *config.Config
	user    string
	store   *store.SQLite
	advisor *advisory.Advisor
	svc     *engine.Service
	logger  *slog.Logger
	closers []io.Closer
}

func openApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	root, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, user: cfg.User}
	if opts.user != "" {
		a.user = opts.user
	}

	base := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, false)
	if cfg.Logging.File != "" {
		logger, closer, err := logging.OpenFile(a.path(cfg.Logging.File), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		base = logger
		a.closers = append(a.closers, closer)
	}
	a.logger = logging.WithComponent(base, logging.ComponentCLI)

	th, err := cfg.ClassifyThresholds()
	if err != nil {
		a.Close()
		return nil, err
	}
	policy, err := cfg.AlertPolicy()
	if err != nil {
		a.Close()
		return nil, err
	}

	db, err := store.OpenSQLite(a.path(cfg.Database), base)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = db
	a.closers = append(a.closers, db)

	a.advisor = advisory.NewAdvisor(advisory.NewRuleGateway(policy), cfg.Advisory.Timeout, base)
	a.svc = engine.NewService(db, db, engine.Options{
		Thresholds: th,
		Policy:     policy,
		Activity:   activity.New(root),
		Advisor:    a.advisor,
		Logger:     base,
	})
	return a, nil
}

// path resolves p against the project directory unless it is absolute.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

// Close stops background advisory work and releases files in reverse order.
func (a *app) Close() error {
	if a.advisor != nil {
		a.advisor.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp opens the app around fn.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(a *app) error) (err error) {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
