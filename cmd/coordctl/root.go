package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/LerianStudio/lib-coordination/coordination/config"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	verbose    bool
	components *config.Components
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "coordctl",
		Short:         "Inspect coordination locks and lists",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log to stderr")

	root.AddCommand(newListsCmd(a), newLockCmd(a))

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	var logger log.Logger = log.NewNop()

	if a.verbose {
		if logger, err = cfg.NewLogger(); err != nil {
			return err
		}
	}

	a.components, err = config.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("build coordination backend: %w", err)
	}

	return nil
}

// run wraps a command body so the backend is closed whether or not it fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() { err = errors.Join(err, a.teardown()) }()

		return fn(cmd, args)
	}
}

func (a *app) teardown() error {
	if a.components == nil {
		return nil
	}

	err := a.components.Close()
	a.components = nil

	return err
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
