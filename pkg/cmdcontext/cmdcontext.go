package cmdcontext

import (
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/spf13/cobra"
)

// InvokeParentPersistentPreRun executes the immediate parent command's
// PersistentPreRunE and PersistentPreRun functions, in that order. If
// an error is returned from PersistentPreRunE, it is immediately returned.
func InvokeParentPersistentPreRun(cmd *cobra.Command, args []string) error {
	parentCmd := cmd.Parent()
	if parentCmd == nil {
		return nil
	}

	var err error

	parentPersistentPreRunE := parentCmd.PersistentPreRunE
	if parentPersistentPreRunE != nil {
		err = parentPersistentPreRunE(parentCmd, args)
	}
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	parentPersistentPreRun := parentCmd.PersistentPreRun
	if parentPersistentPreRun != nil {
		parentPersistentPreRun(parentCmd, args)
	}

	return nil
}
