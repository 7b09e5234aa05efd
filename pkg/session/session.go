// Package session establishes authenticated SSH channels to fleet servers.
package session

import (
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"github.com/alessio/shellescape"
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/kevinburke/ssh_config"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RemoteSession is one authenticated channel to one server. Sessions are not
// shared across concurrent operations; one session per in-flight command.
type RemoteSession interface {
	Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error)
	Transfer(local io.Reader, remotePath string) (int64, error)
	Close() error
}

type SessionOpener interface {
	Open(server entity.ServerDescriptor, handle entity.AgentHandle, timeout time.Duration) (RemoteSession, error)
}

type Factory struct {
	defaultUser string

	// replaceable in tests
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

var _ SessionOpener = &Factory{}

func NewFactory(defaultUser string) *Factory {
	return &Factory{
		defaultUser: defaultUser,
		dial:        ssh.Dial,
	}
}

// Open dials the server and authenticates against the shared agent. The
// handle is read-only here; only the agent manager mutates agent state.
func (f *Factory) Open(server entity.ServerDescriptor, handle entity.AgentHandle, timeout time.Duration) (RemoteSession, error) {
	agentConn, err := net.Dial("unix", handle.SocketPath)
	if err != nil {
		return nil, &breverrors.ConnectError{ServerID: server.ID, Addr: server.GetHostPort(), Cause: err}
	}
	agentClient := agent.NewClient(agentConn)

	config := &ssh.ClientConfig{
		User: f.userFor(server),
		Auth: []ssh.AuthMethod{
			ssh.PublicKeysCallback(agentClient.Signers),
		},
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			// use OpenSSH's known_hosts file if you care about host validation
			return nil
		},
		Timeout: timeout,
	}

	client, err := f.dial("tcp", server.GetHostPort(), config)
	if err != nil {
		_ = agentConn.Close()
		return nil, &breverrors.ConnectError{ServerID: server.ID, Addr: server.GetHostPort(), Cause: err}
	}

	return &sshSession{
		serverID:  server.ID,
		client:    client,
		agentConn: agentConn,
	}, nil
}

// userFor picks the remote user: the descriptor's, then the operator's ssh
// config for that host, then the configured fleet default.
func (f *Factory) userFor(server entity.ServerDescriptor) string {
	if server.User != "" {
		return server.User
	}
	if user := ssh_config.Get(server.Addr, "User"); user != "" {
		return user
	}
	return f.defaultUser
}

type sshSession struct {
	serverID  string
	client    *ssh.Client
	agentConn net.Conn
}

// Run executes one command, blocking until it completes or the timeout
// elapses. A non-zero remote exit comes back as a RemoteExecutionError with
// the captured output still populated.
func (s *sshSession) Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return RunResult{}, &breverrors.ConnectError{ServerID: s.serverID, Addr: s.client.RemoteAddr().String(), Cause: err}
	}
	defer sess.Close() //nolint:errcheck // defer

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	err = sess.Start(command)
	if err != nil {
		return RunResult{}, &breverrors.ConnectError{ServerID: s.serverID, Addr: s.client.RemoteAddr().String(), Cause: err}
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		// closing the session tears the channel down; the remote command is
		// left to its own devices rather than half-killed
		_ = sess.Close()
		return RunResult{Stdout: stdout.String(), Stderr: stderr.String()},
			&breverrors.AttemptTimeoutError{ServerID: s.serverID, Timeout: timeout}
	case <-ctx.Done():
		_ = sess.Close()
		return RunResult{Stdout: stdout.String(), Stderr: stderr.String()},
			breverrors.WrapAndTrace(ctx.Err())
	}

	result := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, &breverrors.RemoteExecutionError{
				ServerID: s.serverID,
				Command:  command,
				ExitCode: exitErr.ExitStatus(),
			}
		}
		return result, &breverrors.ConnectError{ServerID: s.serverID, Addr: s.client.RemoteAddr().String(), Cause: err}
	}
	return result, nil
}

// Transfer streams local content to a remote path over the channel.
func (s *sshSession) Transfer(local io.Reader, remotePath string) (int64, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return 0, &breverrors.ConnectError{ServerID: s.serverID, Addr: s.client.RemoteAddr().String(), Cause: err}
	}
	defer sess.Close() //nolint:errcheck // defer

	stdin, err := sess.StdinPipe()
	if err != nil {
		return 0, breverrors.WrapAndTrace(err)
	}

	err = sess.Start("cat > " + shellescape.Quote(remotePath))
	if err != nil {
		return 0, breverrors.WrapAndTrace(err)
	}

	n, copyErr := io.Copy(stdin, local)
	closeErr := stdin.Close()
	waitErr := sess.Wait()
	if copyErr != nil {
		return n, breverrors.WrapAndTrace(copyErr)
	}
	if closeErr != nil {
		return n, breverrors.WrapAndTrace(closeErr)
	}
	if waitErr != nil {
		return n, breverrors.WrapAndTrace(waitErr)
	}
	return n, nil
}

// Close releases the channel and the agent connection. Safe to call on every
// exit path.
func (s *sshSession) Close() error {
	clientErr := s.client.Close()
	agentErr := s.agentConn.Close()
	if clientErr != nil {
		return breverrors.WrapAndTrace(clientErr)
	}
	if agentErr != nil {
		return breverrors.WrapAndTrace(agentErr)
	}
	return nil
}
