// Package agent manages the persistent ssh-agent hbd reuses across runs
package agent

import (
	"github.com/hbdev/hbd-cli/pkg/cmd/util"
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/sshagent"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	"github.com/spf13/cobra"
)

type AgentStore interface {
	sshagent.AgentStore
}

func NewCmdAgent(t *terminal.Terminal, agentStore AgentStore) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the persistent ssh-agent",
		Long:  "Inspect, refresh or discard the ssh-agent hbd keeps alive between invocations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := cmdcontext.InvokeParentPersistentPreRun(cmd, args)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Help() //nolint:errcheck // help
		},
	}

	cmd.AddCommand(newCmdStatus(t, agentStore))
	cmd.AddCommand(newCmdEnsure(t, agentStore))
	cmd.AddCommand(newCmdClear(t, agentStore))
	return cmd
}

func newCmdStatus(t *terminal.Terminal, agentStore AgentStore) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted ssh-agent state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := agentStore.GetAgentState()
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if state == nil {
				t.Vprint(t.Yellow("no agent state persisted"))
				return nil
			}
			t.Vprintf("pid:           %d\n", state.PID)
			t.Vprintf("socket:        %s\n", state.SocketPath)
			t.Vprintf("fingerprint:   %s\n", state.Fingerprint)
			t.Vprintf("last verified: %s\n", state.LastVerified.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func newCmdEnsure(t *terminal.Terminal, agentStore AgentStore) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Make sure a live agent holds the identity, spawning one if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager := sshagent.NewManager(agentStore, sshagent.PromptPassphraseSource{}, util.NewLogger())
			handle, err := manager.EnsureAgent()
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Vprint(t.Green("agent ready"))
			t.Vprintf("pid: %d, fingerprint: %s\n", handle.PID, handle.Fingerprint)
			return nil
		},
	}
}

func newCmdClear(t *terminal.Terminal, agentStore AgentStore) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the persisted agent state",
		Long:  "Forget the persisted agent state. The agent process itself is left alone; the next run spawns a fresh one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := agentStore.ClearAgentState()
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Vprint("agent state cleared")
			return nil
		},
	}
}
