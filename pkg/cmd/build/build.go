// Package build runs the release build on the build servers
package build

import (
	"context"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	"github.com/spf13/cobra"
)

var (
	buildLong    = "Build and package a release on every build server in the selection. The content Dockerfile gets a unique build id injected and is restored afterwards."
	buildExample = `
  hbd build
  hbd build --targets 9 --timeout 45m
	`
)

func NewCmdBuild(t *terminal.Terminal, buildStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:     "build",
		Short:   "Build a release on the build servers",
		Long:    buildLong,
		Example: buildExample,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := build(cmd.Context(), t, buildStore, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func build(ctx context.Context, t *terminal.Terminal, buildStore util.ExecStore, opts util.ExecOptions) error {
	targets, err := util.SelectTargets(buildStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(buildStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = " building release"
	s.Start()
	err = runner.Build(ctx, targets)
	s.Stop()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	t.Vprint(t.Green("release built and packaged"))
	return nil
}
