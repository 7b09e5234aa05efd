// Package cmd is the entrypoint to cli
package cmd

import (
	"io"
	"os"

	"github.com/hbdev/hbd-cli/pkg/cmd/agent"
	"github.com/hbdev/hbd-cli/pkg/cmd/build"
	"github.com/hbdev/hbd-cli/pkg/cmd/download"
	"github.com/hbdev/hbd-cli/pkg/cmd/ls"
	"github.com/hbdev/hbd-cli/pkg/cmd/run"
	"github.com/hbdev/hbd-cli/pkg/cmd/shutdown"
	"github.com/hbdev/hbd-cli/pkg/cmd/start"
	"github.com/hbdev/hbd-cli/pkg/cmd/tasks"
	"github.com/hbdev/hbd-cli/pkg/cmd/updateconfig"
	"github.com/hbdev/hbd-cli/pkg/cmd/version"
	"github.com/hbdev/hbd-cli/pkg/config"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/featureflag"
	"github.com/hbdev/hbd-cli/pkg/store"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewDefaultHbdCommand() *cobra.Command {
	cmd := NewHbdCommand(os.Stdin, os.Stdout, os.Stderr)
	return cmd
}

func NewHbdCommand(in io.Reader, out io.Writer, err io.Writer) *cobra.Command {
	t := terminal.New()

	conf := config.NewConstants()
	fsStore := store.NewBasicStore(*conf).WithFileSystem(afero.NewOsFs())

	cmds := &cobra.Command{
		Use:   "hbd",
		Short: "hbd client for managing the server fleet",
		Long: `
      hbd client for managing the server fleet: run commands, build and
      distribute releases, and keep guest configs in sync over SSH.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := featureflag.LoadFeatureFlags(conf.GetStateDir())
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Run: runHelp,
	}

	cmds.AddCommand(ls.NewCmdLs(t, fsStore))
	cmds.AddCommand(run.NewCmdRun(t, fsStore))
	cmds.AddCommand(build.NewCmdBuild(t, fsStore))
	cmds.AddCommand(download.NewCmdDownload(t, fsStore))
	cmds.AddCommand(start.NewCmdStart(t, fsStore))
	cmds.AddCommand(shutdown.NewCmdShutdown(t, fsStore))
	cmds.AddCommand(updateconfig.NewCmdUpdateConfig(t, fsStore))
	cmds.AddCommand(agent.NewCmdAgent(t, fsStore))
	cmds.AddCommand(tasks.NewCmdTasks(t, fsStore))
	cmds.AddCommand(version.NewCmdVersion(t))

	return cmds
}

func runHelp(cmd *cobra.Command, _ []string) {
	cmd.Help() //nolint:errcheck // help
}
