// Package util holds the wiring shared by the fleet commands: flag sets,
// engine construction and report printing.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/hbdev/hbd-cli/pkg/config"
	"github.com/hbdev/hbd-cli/pkg/dispatch"
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/featureflag"
	"github.com/hbdev/hbd-cli/pkg/inventory"
	"github.com/hbdev/hbd-cli/pkg/operations"
	"github.com/hbdev/hbd-cli/pkg/session"
	"github.com/hbdev/hbd-cli/pkg/sshagent"
	"github.com/hbdev/hbd-cli/pkg/store"
	"github.com/hbdev/hbd-cli/pkg/terminal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ExecStore is what a command needs to go from flags to a running engine.
type ExecStore interface {
	sshagent.AgentStore
	GetInventory() ([]entity.ServerDescriptor, error)
	GetOperationCatalog() (store.OperationCatalog, error)
	GetDefaultRemoteUser() string
	GetTypeConfig(serverType entity.ServerType) (string, error)
}

// ExecOptions carries the execution flags every fleet command exposes.
type ExecOptions struct {
	Targets    string
	Parallel   bool
	Workers    int
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

func AddExecFlags(cmd *cobra.Command, opts *ExecOptions) {
	conf := config.GlobalConfig
	cmd.Flags().StringVarP(&opts.Targets, "targets", "t", "all", "servers to target: 'all', a type (router, compute, build), or comma-separated ids")
	cmd.Flags().BoolVarP(&opts.Parallel, "parallel", "p", false, "dispatch to targets concurrently")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", conf.GetDefaultMaxWorkers(), "max concurrent targets when --parallel is set")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", conf.GetDefaultTimeout(), "per-attempt timeout")
	cmd.Flags().IntVar(&opts.Retries, "retries", conf.GetDefaultMaxRetries(), "retries per target after the first attempt")
	cmd.Flags().DurationVar(&opts.RetryDelay, "retry-delay", conf.GetDefaultRetryDelay(), "pause between attempts on one target")
}

func (o ExecOptions) Policy() operations.Policy {
	return operations.Policy{
		Timeout:            o.Timeout,
		MaxRetries:         o.Retries,
		RetryDelay:         o.RetryDelay,
		Parallel:           o.Parallel,
		MaxWorkers:         o.Workers,
		RetryOnExitFailure: featureflag.RetryAppExitCodes(),
	}
}

func NewLogger() *zap.Logger {
	if featureflag.Debug() || featureflag.IsDev() {
		log, err := zap.NewDevelopment()
		if err == nil {
			return log
		}
	}
	return zap.NewNop()
}

// SelectTargets loads the inventory and applies the --targets selector.
func SelectTargets(execStore ExecStore, selector string) ([]entity.ServerDescriptor, error) {
	servers, err := execStore.GetInventory()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	selected, err := inventory.Resolve(selector, servers)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return selected, nil
}

// NewRunner assembles the full engine: agent, session factory, dispatcher and
// operation runner. Ensuring the agent may prompt for the key passphrase.
func NewRunner(execStore ExecStore, opts ExecOptions) (*operations.Runner, error) {
	log := NewLogger()

	manager := sshagent.NewManager(execStore, sshagent.PromptPassphraseSource{}, log)
	handle, err := manager.EnsureAgent()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	catalog, err := execStore.GetOperationCatalog()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	opener := session.NewFactory(execStore.GetDefaultRemoteUser())
	dispatcher := dispatch.NewDispatcher(opener, catalog, *handle, log)

	conf := config.GlobalConfig
	return operations.NewRunner(
		dispatcher,
		execStore,
		opts.Policy(),
		conf.GetReleaseHTTPPort(),
		conf.GetRouterProbePort(),
		log,
	), nil
}

// PrintReport renders one line per target plus a summary, in inventory order.
func PrintReport(t *terminal.Terminal, rep entity.ExecutionReport, targets []entity.ServerDescriptor) {
	ordered := make([]entity.TargetResult, 0, len(rep.Results))
	seen := map[string]bool{}
	for _, target := range targets {
		if result, ok := rep.Results[target.ID]; ok {
			ordered = append(ordered, result)
			seen[target.ID] = true
		}
	}
	rest := make([]entity.TargetResult, 0)
	for id, result := range rep.Results {
		if !seen[id] {
			rest = append(rest, result)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].TargetID < rest[j].TargetID })
	ordered = append(ordered, rest...)

	names := map[string]string{}
	for _, target := range targets {
		names[target.ID] = target.Name
	}

	for _, result := range ordered {
		name := names[result.TargetID]
		if name == "" {
			name = result.TargetID
		}
		t.Print(formatResult(t, name, result))
		if last := result.LastAttempt(); last != nil && !last.Succeeded() && last.Stderr != "" {
			t.Eprintf("  %s\n", last.Stderr)
		}
	}

	s := rep.Summary
	t.Printf("%d targets: %d succeeded, %d failed, %d timed out, %d skipped\n",
		s.Total(), s.Succeeded, s.Failed, s.TimedOut, s.Skipped)
}

func formatResult(t *terminal.Terminal, name string, result entity.TargetResult) string {
	last := result.LastAttempt()
	detail := ""
	if last != nil {
		detail = fmt.Sprintf(" (attempts: %d, took %s)", last.Attempt, last.Duration.Round(time.Millisecond))
	}
	switch result.Status {
	case entity.StatusSucceeded:
		return fmt.Sprintf("%s %s%s", t.Green("ok"), name, detail)
	case entity.StatusTimedOut:
		return fmt.Sprintf("%s %s%s", t.Red("timeout"), name, detail)
	case entity.StatusSkipped:
		return fmt.Sprintf("%s %s", t.Yellow("skipped"), name)
	default:
		if last != nil && last.ExitCode != 0 {
			detail = fmt.Sprintf(" (exit %d, attempts: %d)", last.ExitCode, last.Attempt)
		}
		return fmt.Sprintf("%s %s%s", t.Red("failed"), name, detail)
	}
}
