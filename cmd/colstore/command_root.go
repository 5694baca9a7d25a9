package main

import (
	"context"

	"github.com/likearthian/colstore"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultDataDir = ".colstore"

type app struct {
	configFiles []string
	backend     string
	dataDir     string
	logLevel    string

	open  func(ctx context.Context, cfg *colstore.Config) (colstore.CellStore, error)
	cfg   *colstore.Config
	store colstore.CellStore
}

func newApp() *app {
	return &app{open: colstore.Open}
}

// config reads the config files, or falls back to the backend flags.
func (a *app) config() (*colstore.Config, error) {
	if len(a.configFiles) > 0 {
		return colstore.ParseConfig(a.configFiles...)
	}

	cfg := &colstore.Config{Backend: a.backend}
	if a.backend == colstore.BackendPebble {
		cfg.Pebble.Dir = a.dataDir
	}
	return cfg, cfg.Validate()
}

// close releases the store opened for the last command, if any.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}

	err := a.store.Close()
	a.store = nil
	return err
}

// execute runs cmd and closes the store even when the command fails, since
// cobra skips the post run hooks after an error.
func execute(ctx context.Context, a *app, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "colstore",
		Short:         "Inspect and manage wide-column tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			cfg, err := a.config()
			if err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			a.cfg = cfg

			if a.store, err = a.open(cmd.Context(), cfg); err != nil {
				return errors.Wrapf(err, "failed to open %s store", cfg.Backend)
			}

			log.WithField("backend", cfg.Backend).Debug("store opened")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVarP(&a.configFiles, "config", "c", nil, "YAML config files, merged in order")
	flags.StringVar(&a.backend, "backend", colstore.BackendPebble, "backend to use without a config file")
	flags.StringVar(&a.dataDir, "dir", defaultDataDir, "pebble data directory without a config file")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		newTableCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newScanCmd(a),
		newDeleteCmd(a),
		newImportCmd(a),
		newFlushCmd(a),
		newIDCmd(a),
	)

	return rootCmd
}
