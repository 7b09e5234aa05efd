package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// outcome scripts one attempt against one target.
type outcome struct {
	openErr error
	runErr  error
	result  session.RunResult
	delay   time.Duration
}

type fakeOpener struct {
	mu       sync.Mutex
	scripts  map[string][]outcome // consumed per target, last one repeats
	open     int
	maxOpen  int
	attempts map[string]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{scripts: map[string][]outcome{}, attempts: map[string]int{}}
}

func (f *fakeOpener) script(targetID string, outcomes ...outcome) {
	f.scripts[targetID] = outcomes
}

func (f *fakeOpener) next(targetID string) outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[targetID]++
	script := f.scripts[targetID]
	if len(script) == 0 {
		return outcome{}
	}
	if len(script) == 1 {
		return script[0]
	}
	out := script[0]
	f.scripts[targetID] = script[1:]
	return out
}

func (f *fakeOpener) Open(server entity.ServerDescriptor, _ entity.AgentHandle, _ time.Duration) (session.RemoteSession, error) {
	out := f.next(server.ID)
	if out.openErr != nil {
		return nil, out.openErr
	}
	f.mu.Lock()
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	f.mu.Unlock()
	return &fakeSession{opener: f, out: out}, nil
}

type fakeSession struct {
	opener *fakeOpener
	out    outcome
	closed bool
}

func (s *fakeSession) Run(_ context.Context, _ string, _ time.Duration) (session.RunResult, error) {
	if s.out.delay > 0 {
		time.Sleep(s.out.delay)
	}
	return s.out.result, s.out.runErr
}

func (s *fakeSession) Transfer(_ io.Reader, _ string) (int64, error) { return 0, nil }

func (s *fakeSession) Close() error {
	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.opener.open--
	}
	return nil
}

type staticResolver map[string]map[entity.ServerType]string

func (r staticResolver) Resolve(op string, serverType entity.ServerType) (string, bool) {
	cmd, ok := r[op][serverType]
	return cmd, ok
}

func targets(n int) []entity.ServerDescriptor {
	var out []entity.ServerDescriptor
	for i := 1; i <= n; i++ {
		out = append(out, entity.ServerDescriptor{
			ID:   fmt.Sprintf("%d", i),
			Name: fmt.Sprintf("host-%d", i),
			Addr: fmt.Sprintf("10.0.0.%d", i),
			Type: entity.ServerTypeCompute,
		})
	}
	return out
}

func newTestDispatcher(opener *fakeOpener) *Dispatcher {
	d := NewDispatcher(opener, staticResolver{}, entity.AgentHandle{SocketPath: "/sock"}, zap.NewNop())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func baseRequest(ts []entity.ServerDescriptor) entity.ExecutionRequest {
	return entity.ExecutionRequest{
		ID:         "req-1",
		Command:    "uptime",
		Targets:    ts,
		Timeout:    time.Second,
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
	}
}

func TestDispatchAllSucceedBothModes(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		opener := newFakeOpener()
		d := newTestDispatcher(opener)
		req := baseRequest(targets(4))
		req.Parallel = parallel
		req.MaxWorkers = 2
		req.MaxRetries = 3

		r, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 4, r.Summary.Succeeded, "parallel=%v", parallel)
		for _, id := range []string{"1", "2", "3", "4"} {
			result := r.Results[id]
			assert.Equal(t, entity.StatusSucceeded, result.Status)
			assert.Len(t, result.Attempts, 1, "success must not retry")
		}
	}
}

func TestDispatchRetryableFailureExhaustsBudget(t *testing.T) {
	opener := newFakeOpener()
	opener.script("1", outcome{openErr: &breverrors.ConnectError{ServerID: "1", Addr: "10.0.0.1:22"}})
	d := newTestDispatcher(opener)
	req := baseRequest(targets(1))
	req.MaxRetries = 3

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	result := r.Results["1"]
	assert.Equal(t, entity.StatusFailed, result.Status)
	assert.Len(t, result.Attempts, 4, "max_retries+1 attempts")
	for i, attempt := range result.Attempts {
		assert.Equal(t, i+1, attempt.Attempt)
	}
}

func TestDispatchNonZeroExitNotRetriedByDefault(t *testing.T) {
	opener := newFakeOpener()
	opener.script("1", outcome{
		result: session.RunResult{ExitCode: 2, Stderr: "boom"},
		runErr: &breverrors.RemoteExecutionError{ServerID: "1", ExitCode: 2},
	})
	d := newTestDispatcher(opener)
	req := baseRequest(targets(1))
	req.MaxRetries = 3

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	result := r.Results["1"]
	assert.Equal(t, entity.StatusFailed, result.Status)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, "boom", result.Attempts[0].Stderr)
}

func TestDispatchRetryOnExitFailureOptIn(t *testing.T) {
	opener := newFakeOpener()
	opener.script("1",
		outcome{result: session.RunResult{ExitCode: 2}, runErr: &breverrors.RemoteExecutionError{ServerID: "1", ExitCode: 2}},
		outcome{result: session.RunResult{ExitCode: 0, Stdout: "ok"}},
	)
	d := newTestDispatcher(opener)
	req := baseRequest(targets(1))
	req.MaxRetries = 3
	req.RetryOnExitFailure = true

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	result := r.Results["1"]
	assert.Equal(t, entity.StatusSucceeded, result.Status)
	assert.Len(t, result.Attempts, 2)
}

func TestDispatchTimeoutBecomesTimedOut(t *testing.T) {
	opener := newFakeOpener()
	opener.script("1", outcome{runErr: &breverrors.AttemptTimeoutError{ServerID: "1", Timeout: time.Second}})
	d := newTestDispatcher(opener)
	req := baseRequest(targets(1))
	req.MaxRetries = 0

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	result := r.Results["1"]
	assert.Equal(t, entity.StatusTimedOut, result.Status)
	assert.True(t, result.Attempts[0].TimedOut)
}

func TestDispatchFailureIsolation(t *testing.T) {
	opener := newFakeOpener()
	opener.script("2", outcome{openErr: &breverrors.ConnectError{ServerID: "2", Addr: "10.0.0.2:22"}})
	d := newTestDispatcher(opener)
	req := baseRequest(targets(3))

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSucceeded, r.Results["1"].Status)
	assert.Equal(t, entity.StatusFailed, r.Results["2"].Status)
	assert.Equal(t, entity.StatusSucceeded, r.Results["3"].Status)
}

func TestDispatchParallelOneWorkerMatchesSequential(t *testing.T) {
	script := func(opener *fakeOpener) {
		opener.script("2", outcome{openErr: &breverrors.ConnectError{ServerID: "2", Addr: "10.0.0.2:22"}})
		opener.script("3", outcome{runErr: &breverrors.AttemptTimeoutError{ServerID: "3", Timeout: time.Second}})
	}

	seqOpener := newFakeOpener()
	script(seqOpener)
	seq := newTestDispatcher(seqOpener)
	seqReq := baseRequest(targets(4))

	parOpener := newFakeOpener()
	script(parOpener)
	par := newTestDispatcher(parOpener)
	parReq := baseRequest(targets(4))
	parReq.Parallel = true
	parReq.MaxWorkers = 1

	seqReport, err := seq.Dispatch(context.Background(), seqReq)
	require.NoError(t, err)
	parReport, err := par.Dispatch(context.Background(), parReq)
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, seqReport.Results[id].Status, parReport.Results[id].Status, "target %s", id)
	}
}

func TestDispatchConcurrencyBound(t *testing.T) {
	opener := newFakeOpener()
	for i := 1; i <= 20; i++ {
		opener.script(fmt.Sprintf("%d", i), outcome{delay: 5 * time.Millisecond})
	}
	d := newTestDispatcher(opener)
	req := baseRequest(targets(20))
	req.Parallel = true
	req.MaxWorkers = 3

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 20, r.Summary.Succeeded)
	assert.LessOrEqual(t, opener.maxOpen, 3, "never more than max_workers open sessions")
	assert.Greater(t, opener.maxOpen, 0)
}

func TestDispatchCancelledContextSkipsUnstartedTargets(t *testing.T) {
	opener := newFakeOpener()
	d := newTestDispatcher(opener)
	req := baseRequest(targets(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Summary.Skipped)
	for _, result := range r.Results {
		assert.Empty(t, result.Attempts)
	}
}

func TestDispatchCancelDuringRetryDelayStopsAttempts(t *testing.T) {
	opener := newFakeOpener()
	opener.script("1", outcome{openErr: &breverrors.ConnectError{ServerID: "1", Addr: "10.0.0.1:22"}})
	d := newTestDispatcher(opener)
	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(c context.Context, _ time.Duration) error {
		cancel()
		return c.Err()
	}
	req := baseRequest(targets(1))
	req.MaxRetries = 5

	r, err := d.Dispatch(ctx, req)
	require.NoError(t, err)
	result := r.Results["1"]
	assert.Equal(t, entity.StatusFailed, result.Status)
	assert.Len(t, result.Attempts, 1, "abort stops new attempts but keeps completed records")
}

func TestDispatchPanicRecordedAsTargetFailure(t *testing.T) {
	opener := newFakeOpener()
	d := NewDispatcher(panicOpener{opener}, staticResolver{}, entity.AgentHandle{}, zap.NewNop())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	req := baseRequest(targets(2))

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, r.Results["1"].Status)
	assert.Equal(t, entity.StatusSucceeded, r.Results["2"].Status)
}

type panicOpener struct {
	inner *fakeOpener
}

func (p panicOpener) Open(server entity.ServerDescriptor, handle entity.AgentHandle, timeout time.Duration) (session.RemoteSession, error) {
	if server.ID == "1" {
		panic("wire explosion")
	}
	return p.inner.Open(server, handle, timeout)
}

func TestDispatchResolvesCatalogPerType(t *testing.T) {
	opener := newFakeOpener()
	resolver := staticResolver{
		"shutdown": {
			entity.ServerTypeCompute: "stop-compute",
		},
	}
	d := NewDispatcher(opener, resolver, entity.AgentHandle{}, zap.NewNop())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	ts := []entity.ServerDescriptor{
		{ID: "1", Addr: "10.0.0.1", Type: entity.ServerTypeCompute},
		{ID: "2", Addr: "10.0.0.2", Type: entity.ServerTypeRouter},
	}
	req := entity.ExecutionRequest{
		ID:        "req-1",
		Operation: "shutdown",
		Targets:   ts,
		Timeout:   time.Second,
	}

	r, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	// type with a template runs, type without records a failure and does not abort siblings
	assert.Equal(t, entity.StatusSucceeded, r.Results["1"].Status)
	assert.Equal(t, entity.StatusFailed, r.Results["2"].Status)
	assert.NotNil(t, r.Results["2"].Attempts[0].Err)
}

func TestCommandForSubstitutesPlaceholders(t *testing.T) {
	d := newTestDispatcher(newFakeOpener())
	req := entity.ExecutionRequest{
		Command: "run --self {self}:{port} --peer {peer}:{port}",
		Params:  map[string]string{"peer": "10.0.0.1", "port": "80"},
	}
	cmd, err := d.commandFor(req, entity.ServerDescriptor{ID: "2", Addr: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, "run --self 10.0.0.2:80 --peer 10.0.0.1:80", cmd)
}
