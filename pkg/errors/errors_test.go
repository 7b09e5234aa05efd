package errors

import (
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapAndTraceKeepsCause(t *testing.T) {
	base := &ConnectError{ServerID: "9", Addr: "10.0.0.9:22", Cause: pkgerrors.New("refused")}
	wrapped := WrapAndTrace(base, "opening session")
	assert.ErrorContains(t, wrapped, "connect to 9")
	assert.True(t, IsRetryable(wrapped, false))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ConnectError{ServerID: "1"}, false))
	assert.True(t, IsRetryable(&AttemptTimeoutError{ServerID: "1", Timeout: time.Second}, false))
	assert.False(t, IsRetryable(&RemoteExecutionError{ServerID: "1", ExitCode: 2}, false))
	assert.True(t, IsRetryable(&RemoteExecutionError{ServerID: "1", ExitCode: 2}, true))
	assert.False(t, IsRetryable(pkgerrors.New("unclassified"), true))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&KeyLoadError{IdentityFile: "~/.ssh/id_ed25519"}))
	assert.True(t, IsFatal(&AgentSpawnError{}))
	assert.True(t, IsFatal(&SelectionError{Selector: "gpu"}))
	assert.False(t, IsFatal(&ConnectError{ServerID: "1"}))
	assert.False(t, IsFatal(WrapAndTrace(&RemoteExecutionError{ServerID: "1", ExitCode: 1})))
}
