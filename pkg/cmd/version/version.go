// Package version prints the cli version and checks for newer releases
package version

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/featureflag"
	"github.com/hbdev/hbd-cli/pkg/requests"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/spf13/cobra"
)

const cliReleaseURL = "https://api.github.com/repos/hbdev/hbd-cli/releases/latest"

var green = color.New(color.FgGreen).SprintfFunc()

var upToDateString = `
Current version: %s

` + green("You're up to date!")

var outOfDateString = `
Current version: %s

` + green("A new version of hbd has been released!") + `

Version: %s

%s
`

type githubReleaseMetadata struct {
	TagName      string `json:"tag_name"`
	IsDraft      bool   `json:"draft"`
	IsPrerelease bool   `json:"prerelease"`
	Name         string `json:"name"`
	Body         string `json:"body"`
}

func NewCmdVersion(t *terminal.Terminal) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and check for updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			versionString, err := buildVersionString(cmd.Context(), t)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Vprint(versionString)
			return nil
		},
	}
}

func buildVersionString(ctx context.Context, t *terminal.Terminal) (string, error) {
	githubRelease, err := getLatestGithubReleaseMetadata(ctx)
	if err != nil {
		t.Errprint(err, "Failed to retrieve latest version")
		return "", breverrors.WrapAndTrace(err)
	}

	if githubRelease.TagName == featureflag.Version {
		return fmt.Sprintf(upToDateString, featureflag.Version), nil
	}
	return fmt.Sprintf(
		outOfDateString,
		featureflag.Version,
		githubRelease.TagName,
		githubRelease.Body,
	), nil
}

func getLatestGithubReleaseMetadata(ctx context.Context) (*githubReleaseMetadata, error) {
	request := &requests.RESTRequest{
		Method:   "GET",
		Endpoint: cliReleaseURL,
	}
	response, err := request.SubmitStrict(ctx)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	var release githubReleaseMetadata
	err = response.UnmarshalPayload(&release)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return &release, nil
}
