package errors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// The engine's failure taxonomy. Fatal errors abort an invocation before any
// target work starts; per-target errors are recorded in the report and never
// propagate past the dispatcher. Classification is by type, not by message.

type KeyLoadError struct {
	IdentityFile string
	Cause        error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("could not load identity %s: %v", e.IdentityFile, e.Cause)
}

func (e *KeyLoadError) Directive() string {
	return "check the identity file path and passphrase, then run `hbd agent` again"
}

func (e *KeyLoadError) Unwrap() error { return e.Cause }

type AgentSpawnError struct {
	Cause error
}

func (e *AgentSpawnError) Error() string {
	return fmt.Sprintf("could not start ssh-agent: %v", e.Cause)
}

func (e *AgentSpawnError) Directive() string {
	return "verify ssh-agent is installed and on PATH"
}

func (e *AgentSpawnError) Unwrap() error { return e.Cause }

type SelectionError struct {
	Selector string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selector %q matched no servers", e.Selector)
}

func (e *SelectionError) Directive() string {
	return "run `hbd ls` to see known server ids and types"
}

type ConnectError struct {
	ServerID string
	Addr     string
	Cause    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s (%s) failed: %v", e.ServerID, e.Addr, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

type RemoteExecutionError struct {
	ServerID string
	Command  string
	ExitCode int
}

func (e *RemoteExecutionError) Error() string {
	return fmt.Sprintf("command failed on %s with exit code %d", e.ServerID, e.ExitCode)
}

type AttemptTimeoutError struct {
	ServerID string
	Timeout  time.Duration
}

func (e *AttemptTimeoutError) Error() string {
	return fmt.Sprintf("attempt on %s timed out after %s", e.ServerID, e.Timeout)
}

// IsRetryable reports whether a per-attempt error justifies another attempt.
// Transport failures and timeouts retry; non-zero remote exit codes retry only
// when the caller opted in.
func IsRetryable(err error, retryAppExit bool) bool {
	var connErr *ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var toErr *AttemptTimeoutError
	if errors.As(err, &toErr) {
		return true
	}
	var execErr *RemoteExecutionError
	if errors.As(err, &execErr) {
		return retryAppExit
	}
	return false
}

// IsFatal reports whether an error must abort the whole invocation.
func IsFatal(err error) bool {
	var keyErr *KeyLoadError
	var spawnErr *AgentSpawnError
	var selErr *SelectionError
	return errors.As(err, &keyErr) || errors.As(err, &spawnErr) || errors.As(err, &selErr)
}

// IsTimeout reports whether an attempt error was a timeout.
func IsTimeout(err error) bool {
	var toErr *AttemptTimeoutError
	return errors.As(err, &toErr)
}
