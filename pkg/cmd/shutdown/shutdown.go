// Package shutdown stops guest processes across the fleet
package shutdown

import (
	"context"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/pkg/errors"

	"github.com/spf13/cobra"
)

func NewCmdShutdown(t *terminal.Terminal, shutdownStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop guest processes on the selected servers",
		Long:  "Stop the guest processes on every selected server, then verify nothing survived the stop.",
		Example: `
  hbd shutdown
  hbd shutdown --targets compute --parallel
		`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := shutdown(cmd.Context(), t, shutdownStore, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func shutdown(ctx context.Context, t *terminal.Terminal, shutdownStore util.ExecStore, opts util.ExecOptions) error {
	targets, err := util.SelectTargets(shutdownStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(shutdownStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = " stopping guests"
	s.Start()
	rep, warnings, err := runner.Shutdown(ctx, targets)
	s.Stop()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	util.PrintReport(t, rep, targets)
	for _, warning := range warnings {
		t.Vprint(t.Yellow(warning))
	}
	if !rep.Ok() {
		return errors.Errorf("%d of %d targets did not succeed",
			rep.Summary.Failed+rep.Summary.TimedOut, rep.Summary.Total())
	}
	return nil
}
