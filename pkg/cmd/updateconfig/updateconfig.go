// Package updateconfig pushes per-type guest configs to the fleet
package updateconfig

import (
	"context"
	"strings"

	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	"github.com/spf13/cobra"
)

var (
	updateConfigLong    = "Push the local per-type server config to every selected server. The existing remote config is backed up first. Servers whose type has no local config file are skipped."
	updateConfigExample = `
  hbd update-config
  hbd update-config --targets router
	`
)

func NewCmdUpdateConfig(t *terminal.Terminal, configStore util.ExecStore) *cobra.Command {
	var opts util.ExecOptions

	cmd := &cobra.Command{
		Use:     "update-config",
		Short:   "Push server configs to the fleet",
		Long:    updateConfigLong,
		Example: updateConfigExample,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := updateConfig(cmd.Context(), t, configStore, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	util.AddExecFlags(cmd, &opts)

	return cmd
}

func updateConfig(ctx context.Context, t *terminal.Terminal, configStore util.ExecStore, opts util.ExecOptions) error {
	targets, err := util.SelectTargets(configStore, opts.Targets)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	runner, err := util.NewRunner(configStore, opts)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	s := t.NewSpinner()
	s.Suffix = " pushing configs"
	s.Start()
	updated, skipped, err := runner.UpdateConfig(ctx, targets)
	s.Stop()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	t.Vprintf("%s %d servers updated\n", t.Green("ok"), len(updated))
	if len(skipped) > 0 {
		t.Vprint(t.Yellow("skipped servers: " + strings.Join(skipped, ", ")))
	}
	return nil
}
