package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/liran1305/Estimate-sub000/internal/config"
	"github.com/liran1305/Estimate-sub000/internal/logging"
)

// Set via -ldflags at build time.
var (
	version   = ""
	commit    = ""
	buildTime = ""
)

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func exitError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// cli holds what PersistentPreRunE resolved for the subcommands.
type cli struct {
	configFile string
	settings   *config.Settings
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "estimate",
		Short:         "Peer review reputation service",
		Version:       versionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(config.New(), c.configFile)
			if err != nil {
				return exitError(2, "%v", err)
			}
			log, err := logging.New(s.Log.Level, s.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return exitError(2, "%v", err)
			}
			c.settings = s
			c.log = log
			slog.SetDefault(log)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: estimate.yaml in ., /etc/estimate, ~/.estimate)")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newUsersCmd(c),
		newRecomputeCmd(c),
		newViolationsCmd(c),
		newScoresCmd(c),
		newCountersCmd(c),
		newConfigCmd(c),
		newAdminCmd(c),
		newDevTokenCmd(c),
	)
	return root
}

func versionString() string {
	v := version
	if v == "" {
		v = "dev"
	}
	return v
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
