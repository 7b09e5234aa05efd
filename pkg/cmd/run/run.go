// Package run dispatches one shell command across the fleet
package run

import (
	"context"
	"fmt"
	"strings"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/pkg/errors"

	"github.com/spf13/cobra"
)

func NewCmdRun(t *terminal.Terminal, runStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a shell command on the selected servers",
		Long:  "Run one shell command on every selected server, sequentially or in parallel, with per-server retries.",
		Example: `
  hbd run -- uptime
  hbd run --targets compute --parallel -- sudo systemctl restart hb
  hbd run --targets 9,10 --timeout 30s -- df -h
		`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), t, runStore, opts, strings.Join(args, " "))
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func run(ctx context.Context, t *terminal.Terminal, runStore util.ExecStore, opts util.ExecOptions, command string) error {
	targets, err := util.SelectTargets(runStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(runStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = fmt.Sprintf(" running on %d servers", len(targets))
	s.Start()
	rep, err := runner.RunCommand(ctx, command, targets)
	s.Stop()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	util.PrintReport(t, rep, targets)
	if !rep.Ok() {
		return errors.Errorf("%d of %d targets did not succeed",
			rep.Summary.Failed+rep.Summary.TimedOut, rep.Summary.Total())
	}
	return nil
}
