// Package download distributes a packaged release across the fleet
package download

import (
	"context"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/pkg/errors"

	"github.com/spf13/cobra"
)

func NewCmdDownload(t *terminal.Terminal, downloadStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the packaged release onto the fleet",
		Long:  "Serve the packaged release from the first build server and download it onto every other selected server.",
		Example: `
  hbd download
  hbd download --parallel --workers 3
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
			err := download(cmd.Context(), t, downloadStore, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func download(ctx context.Context, t *terminal.Terminal, downloadStore util.ExecStore, opts util.ExecOptions) error {
	targets, err := util.SelectTargets(downloadStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(downloadStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = " distributing release"
	s.Start()
	rep, err := runner.Download(ctx, targets)
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
