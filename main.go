package main

import (
	"os"

	"github.com/hbdev/hbd-cli/pkg/cmd"
	"github.com/hbdev/hbd-cli/pkg/cmd/cmderrors"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
)

func main() {
	flush := breverrors.GetDefaultErrorReporter().Setup()
	defer flush()

	command := cmd.NewDefaultHbdCommand()

	if err := command.Execute(); err != nil {
		cmderrors.DisplayAndHandleError(err)
		os.Exit(1)
	}
}
