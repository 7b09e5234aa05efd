// Package tasks runs hbd background daemons
package tasks

import (
	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/sshagent"
	"github.com/hbdev/hbd-cli/pkg/tasks"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type TaskStore interface {
	sshagent.AgentStore
	MakeStateDir() (string, error)
}

func NewCmdTasks(t *terminal.Terminal, taskStore TaskStore) *cobra.Command {
	var detached bool

	cmd := &cobra.Command{
		Use:                   "tasks",
		DisableFlagsInUseLine: true,
		Short:                 "run background daemons for hbd",
		Long:                  "run background daemons for hbd",
		Run: func(cmd *cobra.Command, args []string) {
			err := runTasks(taskStore, detached)
			if err != nil {
				log.Error(err)
			}
		},
	}
	cmd.Flags().BoolVarP(&detached, "detached", "d", false, "detach and run as a daemon")

	return cmd
}

func runTasks(taskStore TaskStore, detached bool) error {
	taskList := []tasks.Task{
		tasks.AgentKeepalive{
			Ensurer: sshagent.NewManager(taskStore, sshagent.PromptPassphraseSource{}, util.NewLogger()),
		},
	}

	if detached {
		err := tasks.RunTaskAsDaemon(taskList, taskStore)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		return nil
	}

	err := tasks.RunTasks(taskList)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
