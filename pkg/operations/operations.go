// Package operations composes release-management workflows on top of the
// dispatcher: build, download, start, shutdown and config updates.
package operations

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/uuid"
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/inventory"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req entity.ExecutionRequest) (entity.ExecutionReport, error)
}

type ConfigStore interface {
	GetTypeConfig(serverType entity.ServerType) (string, error)
}

// Policy carries the execution knobs one invocation applies to every
// dispatch an operation makes.
type Policy struct {
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	Parallel           bool
	MaxWorkers         int
	RetryOnExitFailure bool
}

type Runner struct {
	dispatcher      Dispatcher
	store           ConfigStore
	policy          Policy
	releasePort     int
	routerProbePort int
	log             *zap.Logger

	// replaceable in tests
	probeAddr func(addr string, timeout time.Duration) error
	sleep     func(d time.Duration)
}

func NewRunner(dispatcher Dispatcher, store ConfigStore, policy Policy, releasePort, routerProbePort int, log *zap.Logger) *Runner {
	return &Runner{
		dispatcher:      dispatcher,
		store:           store,
		policy:          policy,
		releasePort:     releasePort,
		routerProbePort: routerProbePort,
		log:             log,
		probeAddr:       probeTCP,
		sleep:           time.Sleep,
	}
}

func (r *Runner) request(targets []entity.ServerDescriptor) entity.ExecutionRequest {
	return entity.ExecutionRequest{
		ID:                 uuid.NewString(),
		Targets:            targets,
		Timeout:            r.policy.Timeout,
		MaxRetries:         r.policy.MaxRetries,
		RetryDelay:         r.policy.RetryDelay,
		Parallel:           r.policy.Parallel,
		MaxWorkers:         r.policy.MaxWorkers,
		RetryOnExitFailure: r.policy.RetryOnExitFailure,
	}
}

// RunCommand dispatches one literal shell command against the selection.
func (r *Runner) RunCommand(ctx context.Context, command string, targets []entity.ServerDescriptor) (entity.ExecutionReport, error) {
	req := r.request(targets)
	req.Command = command
	rep, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return rep, breverrors.WrapAndTrace(err)
	}
	return rep, nil
}

// runOperation dispatches a catalog operation with template params.
func (r *Runner) runOperation(ctx context.Context, operation string, params map[string]string, targets []entity.ServerDescriptor) (entity.ExecutionReport, error) {
	req := r.request(targets)
	req.Operation = operation
	req.Params = params
	rep, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return rep, breverrors.WrapAndTrace(err)
	}
	return rep, nil
}

// Shutdown stops the guest processes on the selection, then runs a verify
// pass. Hosts where guest processes survive show up in the returned warnings.
func (r *Runner) Shutdown(ctx context.Context, targets []entity.ServerDescriptor) (entity.ExecutionReport, []string, error) {
	rep, err := r.runOperation(ctx, "shutdown", nil, targets)
	if err != nil {
		return rep, nil, breverrors.WrapAndTrace(err)
	}

	verify, err := r.runOperation(ctx, "verify_shutdown", nil, targets)
	if err != nil {
		return rep, nil, breverrors.WrapAndTrace(err)
	}
	var warnings []string
	for _, target := range targets {
		last := verify.Results[target.ID].LastAttempt()
		if last == nil {
			continue
		}
		if last.Succeeded() && !containsNoGuests(last.Stdout) {
			warnings = append(warnings, fmt.Sprintf("guest processes may still be running on %s", target.Name))
		}
	}
	return rep, warnings, nil
}

func containsNoGuests(stdout string) bool {
	return stdout == "" || strings.Contains(stdout, "no guest processes found")
}

// Build runs the release build sequence on each build server: back up the
// content Dockerfile, inject a unique build identifier, build the guest,
// package the release, and always restore the Dockerfile.
func (r *Runner) Build(ctx context.Context, targets []entity.ServerDescriptor) error {
	builds := inventory.ByType(targets, entity.ServerTypeBuild)
	if len(builds) == 0 {
		return &breverrors.SelectionError{Selector: string(entity.ServerTypeBuild)}
	}

	var result *multierror.Error
	for _, server := range builds {
		err := r.buildOn(ctx, server)
		if err != nil {
			r.log.Error("build failed", zap.String("server", server.Name), zap.Error(err))
			result = multierror.Append(result, errors.Wrapf(err, "build on %s", server.Name))
		}
	}
	return result.ErrorOrNil()
}

func (r *Runner) buildOn(ctx context.Context, server entity.ServerDescriptor) (retErr error) {
	single := []entity.ServerDescriptor{server}
	steps := []struct {
		name    string
		command string
	}{
		{"backup dockerfile", "cp hb-os/resources/content.Dockerfile hb-os/resources/content.Dockerfile.bak"},
		{"inject build id", fmt.Sprintf(
			`sed -i '/RUN mkdir -p \/build \/release/a RUN echo "%s"' hb-os/resources/content.Dockerfile`,
			uuid.NewString())},
		{"build guest", "cd hb-os && ./run build_guest"},
		{"package release", "cd hb-os && sudo rm -rf inputs.json release release.tar.gz && sudo ./run package_release"},
	}

	defer func() {
		// the Dockerfile restore runs regardless of how the build went
		_, err := r.RunCommand(ctx, "mv hb-os/resources/content.Dockerfile.bak hb-os/resources/content.Dockerfile", single)
		if err != nil && retErr == nil {
			retErr = breverrors.WrapAndTrace(err)
		}
	}()

	for _, step := range steps {
		rep, err := r.RunCommand(ctx, step.command, single)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if !rep.Ok() {
			return errors.Errorf("step %q failed on %s", step.name, server.Name)
		}
	}
	return nil
}

// Download serves the release from the first build server over HTTP and
// dispatches the download on every non-build target. The file server is
// stopped again no matter how the downloads went.
func (r *Runner) Download(ctx context.Context, targets []entity.ServerDescriptor) (entity.ExecutionReport, error) {
	builds := inventory.ByType(targets, entity.ServerTypeBuild)
	others := inventory.ExcludingType(targets, entity.ServerTypeBuild)
	if len(builds) == 0 {
		return entity.ExecutionReport{}, &breverrors.SelectionError{Selector: string(entity.ServerTypeBuild)}
	}
	if len(others) == 0 {
		return entity.ExecutionReport{}, errors.New("no targets to download the release to")
	}

	port := strconv.Itoa(r.releasePort)
	source := builds[0]
	_, err := r.runOperation(ctx, "serve_release", map[string]string{"port": port}, []entity.ServerDescriptor{source})
	if err != nil {
		return entity.ExecutionReport{}, breverrors.WrapAndTrace(err)
	}
	defer func() {
		_, stopErr := r.runOperation(ctx, "stop_serving_release", map[string]string{"port": port}, []entity.ServerDescriptor{source})
		if stopErr != nil {
			r.log.Warn("could not stop release file server", zap.String("server", source.Name), zap.Error(stopErr))
		}
	}()

	url := fmt.Sprintf("http://%s:%s/release.tar.gz", source.Addr, port)
	rep, err := r.runOperation(ctx, "download_release", map[string]string{"url": url}, others)
	if err != nil {
		return rep, breverrors.WrapAndTrace(err)
	}
	return rep, nil
}

// Start brings a release up: routers first, each probed until it accepts
// connections, then compute nodes peered to the first router.
func (r *Runner) Start(ctx context.Context, targets []entity.ServerDescriptor) error {
	routers := inventory.ByType(targets, entity.ServerTypeRouter)
	computes := inventory.ByType(targets, entity.ServerTypeCompute)
	if len(routers) == 0 {
		return &breverrors.SelectionError{Selector: string(entity.ServerTypeRouter)}
	}

	port := strconv.Itoa(r.routerProbePort)
	for _, router := range routers {
		err := r.startOn(ctx, router, map[string]string{"port": port})
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		err = r.waitForRouter(router)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		r.log.Info("router is available", zap.String("router", router.Name))
	}

	peer := routers[0].Addr
	var result *multierror.Error
	for _, compute := range computes {
		err := r.startOn(ctx, compute, map[string]string{"port": port, "peer": peer})
		if err != nil {
			r.log.Error("could not start release on compute node",
				zap.String("server", compute.Name), zap.Error(err))
			result = multierror.Append(result, errors.Wrapf(err, "start on %s", compute.Name))
		}
	}
	return result.ErrorOrNil()
}

func (r *Runner) startOn(ctx context.Context, server entity.ServerDescriptor, params map[string]string) error {
	single := []entity.ServerDescriptor{server}

	// stop any stale instance before starting the new release
	rep, err := r.runOperation(ctx, "shutdown", nil, single)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !rep.Ok() {
		return errors.Errorf("could not stop stale instances on %s", server.Name)
	}

	rep, err = r.runOperation(ctx, "start_release", params, single)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !rep.Ok() {
		return errors.Errorf("could not start release on %s", server.Name)
	}
	return nil
}

const (
	routerWaitBudget   = 30 * time.Second
	routerProbePause   = 2 * time.Second
	routerProbeTimeout = 2 * time.Second
)

func (r *Runner) waitForRouter(router entity.ServerDescriptor) error {
	addr := net.JoinHostPort(router.Addr, strconv.Itoa(r.routerProbePort))
	attempts := int(routerWaitBudget / routerProbePause)
	for i := 0; i < attempts; i++ {
		if err := r.probeAddr(addr, routerProbeTimeout); err == nil {
			return nil
		}
		r.sleep(routerProbePause)
	}
	return errors.Errorf("router %s did not become available within %s", router.Name, routerWaitBudget)
}

func probeTCP(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return errors.WithStack(err)
	}
	return conn.Close()
}

// UpdateConfig backs up and replaces the guest config on every non-build
// target that has a local per-type config file. Returns the ids updated and
// the ids skipped.
func (r *Runner) UpdateConfig(ctx context.Context, targets []entity.ServerDescriptor) (updated []string, skipped []string, err error) {
	for _, server := range inventory.ExcludingType(targets, entity.ServerTypeBuild) {
		content, err := r.store.GetTypeConfig(server.Type)
		if err != nil {
			return updated, skipped, breverrors.WrapAndTrace(err)
		}
		if content == "" {
			r.log.Warn("no local config for server type, skipping",
				zap.String("server", server.Name), zap.String("type", string(server.Type)))
			skipped = append(skipped, server.ID)
			continue
		}
		err = r.updateConfigOn(ctx, server, content)
		if err != nil {
			r.log.Error("config update failed", zap.String("server", server.Name), zap.Error(err))
			skipped = append(skipped, server.ID)
			continue
		}
		updated = append(updated, server.ID)
	}
	return updated, skipped, nil
}

func (r *Runner) updateConfigOn(ctx context.Context, server entity.ServerDescriptor, content string) error {
	single := []entity.ServerDescriptor{server}

	backup := "mkdir -p /home/hb/hb-os/config/backups && " +
		"cp /home/hb/hb-os/config/server.jsonc /home/hb/hb-os/config/backups/server-$(date +%s).jsonc 2>/dev/null || true"
	rep, err := r.RunCommand(ctx, backup, single)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !rep.Ok() {
		r.log.Warn("could not back up existing config, proceeding anyway",
			zap.String("server", server.Name))
	}

	push := fmt.Sprintf("echo %s > /home/hb/hb-os/config/server.jsonc", shellescape.Quote(content))
	rep, err = r.RunCommand(ctx, push, single)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !rep.Ok() {
		return errors.Errorf("could not write config on %s", server.Name)
	}
	return nil
}
