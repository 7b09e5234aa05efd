// Package ls lists the servers in the fleet inventory
package ls

import (
	"github.com/hbdev/hbd-cli/pkg/cmdcontext"
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/inventory"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	"github.com/spf13/cobra"
)

type LsStore interface {
	GetInventory() ([]entity.ServerDescriptor, error)
}

func NewCmdLs(t *terminal.Terminal, lsStore LsStore) *cobra.Command {
	var targets string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List servers in the inventory",
		Long:  "List the servers in the fleet inventory, optionally filtered by the --targets selector.",
		Example: `
  hbd ls
  hbd ls --targets build
  hbd ls --targets 1,2
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
			err := ls(t, lsStore, targets)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&targets, "targets", "t", "all", "servers to list: 'all', a type, or comma-separated ids")

	return cmd
}

func ls(t *terminal.Terminal, lsStore LsStore, selector string) error {
	servers, err := lsStore.GetInventory()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	selected, err := inventory.Resolve(selector, servers)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if len(selected) == 0 {
		t.Vprint(t.Yellow("no servers in inventory"))
		return nil
	}

	t.Vprintf("%-6s %-20s %-18s %-6s %s\n", "ID", "NAME", "ADDRESS", "PORT", "TYPE")
	for _, server := range selected {
		t.Vprintf("%-6s %-20s %-18s %-6d %s\n",
			server.ID, server.Name, server.Addr, server.GetPort(), server.Type)
	}
	return nil
}
