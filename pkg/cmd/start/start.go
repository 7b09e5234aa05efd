// Package start brings a downloaded release up across the fleet
package start

import (
	"context"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	"github.com/spf13/cobra"
)

var (
	startLong    = "Start the downloaded release: routers come up first and are probed until they accept connections, then the compute servers start peered to the first router."
	startExample = `
  hbd start
  hbd start --targets 1,2
	`
)

func NewCmdStart(t *terminal.Terminal, startStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the release on the fleet",
		Long:    startLong,
		Example: startExample,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := start(cmd.Context(), t, startStore, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func start(ctx context.Context, t *terminal.Terminal, startStore util.ExecStore, opts util.ExecOptions) error {
	targets, err := util.SelectTargets(startStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(startStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = " starting release"
	s.Start()
	err = runner.Start(ctx, targets)
	s.Stop()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	t.Vprint(t.Green("release is running"))
	return nil
}
