package cmderrors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hbdev/hbd-cli/pkg/featureflag"
	"github.com/hbdev/hbd-cli/pkg/terminal"

	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
)

// determines if should print error stack trace and/or send to crash monitor
func DisplayAndHandleCmdError(name string, cmdFunc func() error) error {
	er := breverrors.GetDefaultErrorReporter()
	er.AddTag("command", name)
	err := cmdFunc()
	if err != nil {
		er.ReportMessage(err.Error())
		er.ReportError(err)
		if featureflag.Debug() || featureflag.IsDev() {
			return err
		} else {
			return errors.Cause(err) //nolint:wrapcheck //no check
		}
	}
	return nil
}

func DisplayAndHandleError(err error) {
	if err != nil {
		t := terminal.New()
		er := breverrors.GetDefaultErrorReporter()
		er.ReportMessage(err.Error())
		er.ReportError(err)
		cause := errors.Cause(err)
		prettyErr := t.Red(cause.Error())
		if hbdErr, ok := cause.(breverrors.HbdError); ok {
			prettyErr += "\n" + t.Yellow(hbdErr.Directive())
		}
		if featureflag.Debug() || featureflag.IsDev() {
			fmt.Println(err)
		} else {
			fmt.Println(prettyErr)
		}
	}
}
