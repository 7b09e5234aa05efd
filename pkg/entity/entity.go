package entity

import (
	"fmt"
	"time"
)

type ServerType string

const (
	ServerTypeRouter  ServerType = "router"
	ServerTypeCompute ServerType = "compute"
	ServerTypeBuild   ServerType = "build"
)

// ServerDescriptor is one known host. Immutable once loaded; identity is ID.
type ServerDescriptor struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Addr string     `json:"ip"`
	Port int        `json:"port,omitempty"`
	User string     `json:"user,omitempty"`
	Type ServerType `json:"type"`
}

func (s ServerDescriptor) GetPort() int {
	if s.Port == 0 {
		return 22
	}
	return s.Port
}

func (s ServerDescriptor) GetHostPort() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.GetPort())
}

func (s ServerDescriptor) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Addr)
}

// AgentHandle references the long-lived ssh-agent process holding the
// decrypted key. Owned by the agent manager; everyone else reads only.
type AgentHandle struct {
	SocketPath   string    `json:"socketPath"`
	PID          int       `json:"pid"`
	Fingerprint  string    `json:"fingerprint"`
	LastVerified time.Time `json:"lastVerified"`
}

// ExecutionRequest is one dispatch. Immutable for its duration.
type ExecutionRequest struct {
	ID        string
	Command   string            // literal command; empty when Operation is set
	Operation string            // catalog operation name, resolved per server type
	Params    map[string]string // template placeholders, e.g. {peer}, {url}
	Targets   []ServerDescriptor

	Timeout    time.Duration // per attempt
	MaxRetries int           // additional attempts after the first
	RetryDelay time.Duration

	Parallel   bool
	MaxWorkers int

	// RetryOnExitFailure widens retries to non-zero remote exit codes.
	// Default is false: only transport failures and timeouts retry.
	RetryOnExitFailure bool
}

// AttemptRecord is one execution try against one target. Append-only.
type AttemptRecord struct {
	TargetID string
	Attempt  int // 1-based
	Start    time.Time
	Duration time.Duration
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	TimedOut bool
}

func (a AttemptRecord) Succeeded() bool {
	return a.Err == nil && a.ExitCode == 0
}

type TargetStatus string

const (
	StatusSucceeded TargetStatus = "succeeded"
	StatusFailed    TargetStatus = "failed"
	StatusTimedOut  TargetStatus = "timed_out"
	StatusSkipped   TargetStatus = "skipped"
)

// TargetResult is the final outcome for one target.
type TargetResult struct {
	TargetID string
	Status   TargetStatus
	Attempts []AttemptRecord
}

// LastAttempt returns the final attempt, or nil for skipped targets.
func (r TargetResult) LastAttempt() *AttemptRecord {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// ExecutionReport is the aggregated outcome of one dispatch, keyed by target
// id so presentation order stays deterministic regardless of completion order.
type ExecutionReport struct {
	RequestID string
	Results   map[string]TargetResult
	Summary   Summary
}

type Summary struct {
	Succeeded int
	Failed    int
	TimedOut  int
	Skipped   int
}

func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.TimedOut + s.Skipped
}

// Ok reports whether every attempted target succeeded.
func (r ExecutionReport) Ok() bool {
	return r.Summary.Failed == 0 && r.Summary.TimedOut == 0
}

// ExitCode implements the scripting convention: non-zero if any target's
// final status is failed or timed_out.
func (r ExecutionReport) ExitCode() int {
	if r.Ok() {
		return 0
	}
	return 1
}
