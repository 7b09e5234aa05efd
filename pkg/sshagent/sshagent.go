// Package sshagent owns the lifecycle of one decrypted SSH key inside a
// persistent ssh-agent process reused across invocations.
package sshagent

import (
	"io"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/manifoldco/promptui"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const maxPassphraseAttempts = 3

type AgentStore interface {
	GetAgentState() (*entity.AgentHandle, error)
	SaveAgentState(entity.AgentHandle) error
	ClearAgentState() error
	WithAgentStateLock(func() error) error
	GetIdentityFileContents() ([]byte, error)
	GetIdentityPublicKey() (string, error)
	GetIdentityFilePath() string
}

// PassphraseSource supplies the key passphrase when the agent cannot be
// reused. It is consulted at most once per decryption attempt.
type PassphraseSource interface {
	ReadPassphrase(label string) (string, error)
}

type PromptPassphraseSource struct{}

func (PromptPassphraseSource) ReadPassphrase(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	result, err := prompt.Run()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return result, nil
}

// StaticPassphraseSource serves a pre-supplied secret, for scripted use.
type StaticPassphraseSource struct {
	Passphrase string
}

func (s StaticPassphraseSource) ReadPassphrase(_ string) (string, error) {
	return s.Passphrase, nil
}

type Manager struct {
	store      AgentStore
	passphrase PassphraseSource
	log        *zap.Logger

	// replaceable in tests
	spawnAgent func() (socketPath string, pid int, err error)
	dialAgent  func(socketPath string) (agent.Agent, io.Closer, error)
	pidAlive   func(pid int) bool

	mu     sync.Mutex
	cached *entity.AgentHandle
}

func NewManager(store AgentStore, passphrase PassphraseSource, log *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		passphrase: passphrase,
		log:        log,
		spawnAgent: spawnAgentProcess,
		dialAgent:  dialAgentSocket,
		pidAlive:   pidIsAlive,
	}
}

// EnsureAgent returns a handle to a live agent holding the configured
// identity. A persisted agent that still runs and holds the right key is
// reused without prompting; anything else triggers one spawn-and-load cycle.
// Concurrent invocations of the tool serialize on the state file lock.
func (m *Manager) EnsureAgent() (*entity.AgentHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var handle *entity.AgentHandle
	err := m.store.WithAgentStateLock(func() error {
		var err error
		handle, err = m.ensureLocked()
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		return nil
	})
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	m.cached = handle
	return handle, nil
}

func (m *Manager) ensureLocked() (*entity.AgentHandle, error) {
	expected, err := m.expectedFingerprint()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	state, err := m.store.GetAgentState()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if state != nil {
		if fingerprint, ok := m.probe(*state, expected); ok {
			m.log.Debug("reusing persisted ssh-agent",
				zap.Int("pid", state.PID),
				zap.String("fingerprint", fingerprint))
			state.Fingerprint = fingerprint
			state.LastVerified = time.Now().UTC()
			err = m.store.SaveAgentState(*state)
			if err != nil {
				return nil, breverrors.WrapAndTrace(err)
			}
			return state, nil
		}
		m.log.Debug("persisted ssh-agent unusable, respawning", zap.Int("pid", state.PID))
		err = m.store.ClearAgentState()
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
	}

	handle, err := m.spawnAndLoad()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	err = m.store.SaveAgentState(*handle)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return handle, nil
}

// probe checks process liveness and that the expected key is loaded. It is a
// lightweight agent List query, never a decryption.
func (m *Manager) probe(state entity.AgentHandle, expectedFingerprint string) (string, bool) {
	if state.PID <= 0 || state.SocketPath == "" {
		return "", false
	}
	if !m.pidAlive(state.PID) {
		return "", false
	}
	client, closer, err := m.dialAgent(state.SocketPath)
	if err != nil {
		return "", false
	}
	defer closer.Close() //nolint:errcheck // defer

	keys, err := client.List()
	if err != nil {
		return "", false
	}
	for _, key := range keys {
		fingerprint := ssh.FingerprintSHA256(key)
		if expectedFingerprint != "" && fingerprint == expectedFingerprint {
			return fingerprint, true
		}
		if expectedFingerprint == "" && fingerprint == state.Fingerprint {
			return fingerprint, true
		}
	}
	return "", false
}

func (m *Manager) spawnAndLoad() (*entity.AgentHandle, error) {
	socketPath, pid, err := m.spawnAgent()
	if err != nil {
		return nil, &breverrors.AgentSpawnError{Cause: err}
	}
	m.log.Debug("spawned ssh-agent", zap.Int("pid", pid), zap.String("socket", socketPath))

	rawKey, signer, err := m.decryptIdentity()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	client, closer, err := m.dialAgent(socketPath)
	if err != nil {
		return nil, &breverrors.AgentSpawnError{Cause: err}
	}
	defer closer.Close() //nolint:errcheck // defer

	err = client.Add(agent.AddedKey{
		PrivateKey: rawKey,
		Comment:    m.store.GetIdentityFilePath(),
	})
	if err != nil {
		return nil, &breverrors.AgentSpawnError{Cause: err}
	}

	return &entity.AgentHandle{
		SocketPath:   socketPath,
		PID:          pid,
		Fingerprint:  ssh.FingerprintSHA256(signer.PublicKey()),
		LastVerified: time.Now().UTC(),
	}, nil
}

// decryptIdentity parses the private key, prompting for its passphrase only
// when the key is encrypted. Three failed decryptions are a KeyLoadError.
func (m *Manager) decryptIdentity() (interface{}, ssh.Signer, error) {
	identityFile := m.store.GetIdentityFilePath()
	pemBytes, err := m.store.GetIdentityFileContents()
	if err != nil {
		return nil, nil, &breverrors.KeyLoadError{IdentityFile: identityFile, Cause: err}
	}

	rawKey, err := ssh.ParseRawPrivateKey(pemBytes)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if !errors.As(err, &passErr) {
			return nil, nil, &breverrors.KeyLoadError{IdentityFile: identityFile, Cause: err}
		}
		rawKey, err = m.decryptWithPassphrase(pemBytes, identityFile)
		if err != nil {
			return nil, nil, breverrors.WrapAndTrace(err)
		}
	}

	signer, err := ssh.NewSignerFromKey(rawKey)
	if err != nil {
		return nil, nil, &breverrors.KeyLoadError{IdentityFile: identityFile, Cause: err}
	}
	return rawKey, signer, nil
}

func (m *Manager) decryptWithPassphrase(pemBytes []byte, identityFile string) (interface{}, error) {
	var lastErr error
	for attempt := 1; attempt <= maxPassphraseAttempts; attempt++ {
		passphrase, err := m.passphrase.ReadPassphrase("Passphrase for " + identityFile)
		if err != nil {
			return nil, &breverrors.KeyLoadError{IdentityFile: identityFile, Cause: err}
		}
		rawKey, err := ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
		if err == nil {
			return rawKey, nil
		}
		lastErr = err
		m.log.Debug("key decryption failed", zap.Int("attempt", attempt))
	}
	return nil, &breverrors.KeyLoadError{IdentityFile: identityFile, Cause: lastErr}
}

// expectedFingerprint derives the fingerprint to look for in a reused agent
// from the public half of the identity. Returns "" when no .pub file exists;
// the persisted fingerprint is trusted in that case.
func (m *Manager) expectedFingerprint() (string, error) {
	pub, err := m.store.GetIdentityPublicKey()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	if pub == "" {
		return "", nil
	}
	pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub))
	if err != nil {
		// an unparseable .pub file shouldn't block agent reuse
		return "", nil
	}
	return ssh.FingerprintSHA256(pubKey), nil
}

var (
	sockRe = regexp.MustCompile(`SSH_AUTH_SOCK=([^;]+);`)
	pidRe  = regexp.MustCompile(`SSH_AGENT_PID=(\d+);`)
)

// spawnAgentProcess starts a new ssh-agent and parses its setup output. The
// agent intentionally outlives this invocation.
func spawnAgentProcess() (string, int, error) {
	out, err := exec.Command("ssh-agent", "-s").Output()
	if err != nil {
		return "", 0, errors.Wrap(err, "running ssh-agent")
	}
	sockMatch := sockRe.FindSubmatch(out)
	pidMatch := pidRe.FindSubmatch(out)
	if sockMatch == nil || pidMatch == nil {
		return "", 0, errors.Errorf("unexpected ssh-agent output: %q", string(out))
	}
	pid, err := strconv.Atoi(string(pidMatch[1]))
	if err != nil {
		return "", 0, errors.Wrap(err, "parsing ssh-agent pid")
	}
	return string(sockMatch[1]), pid, nil
}

func dialAgentSocket(socketPath string) (agent.Agent, io.Closer, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dialing agent socket")
	}
	return agent.NewClient(conn), conn, nil
}

func pidIsAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}
