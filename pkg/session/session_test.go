package session

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestUserForPrecedence(t *testing.T) {
	f := NewFactory("hb")

	withUser := entity.ServerDescriptor{ID: "1", Addr: "10.0.0.1", User: "ops"}
	assert.Equal(t, "ops", f.userFor(withUser))

	withoutUser := entity.ServerDescriptor{ID: "2", Addr: "203.0.113.7"}
	assert.Equal(t, "hb", f.userFor(withoutUser))
}

func TestOpenMissingAgentSocketIsConnectError(t *testing.T) {
	f := NewFactory("hb")

	_, err := f.Open(
		entity.ServerDescriptor{ID: "1", Addr: "10.0.0.1"},
		entity.AgentHandle{SocketPath: filepath.Join(t.TempDir(), "no-such-agent")},
		time.Second,
	)
	require.Error(t, err)
	var connErr *breverrors.ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "1", connErr.ServerID)
}

func TestOpenDialFailureIsConnectError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "agent.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close() //nolint:errcheck // defer
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	f := NewFactory("hb")
	f.dial = func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		assert.Equal(t, "tcp", network)
		assert.Equal(t, "10.0.0.1:22", addr)
		assert.Equal(t, "hb", config.User)
		return nil, errors.New("connection refused")
	}

	_, err = f.Open(
		entity.ServerDescriptor{ID: "1", Addr: "10.0.0.1"},
		entity.AgentHandle{SocketPath: socketPath},
		time.Second,
	)
	require.Error(t, err)
	var connErr *breverrors.ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "10.0.0.1:22", connErr.Addr)
}
