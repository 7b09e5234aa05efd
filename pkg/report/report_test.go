package report

import (
	"testing"
	"time"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDerivesStatuses(t *testing.T) {
	records := []entity.AttemptRecord{
		{TargetID: "1", Attempt: 1, ExitCode: 0},
		{TargetID: "2", Attempt: 1, ExitCode: 1, Err: &breverrors.RemoteExecutionError{ServerID: "2", ExitCode: 1}},
		{TargetID: "2", Attempt: 2, ExitCode: 1, Err: &breverrors.RemoteExecutionError{ServerID: "2", ExitCode: 1}},
		{TargetID: "3", Attempt: 1, TimedOut: true, Err: &breverrors.AttemptTimeoutError{ServerID: "3", Timeout: time.Second}},
	}

	r := Aggregate("req-1", []string{"1", "2", "3", "4"}, records)

	assert.Equal(t, entity.StatusSucceeded, r.Results["1"].Status)
	assert.Equal(t, entity.StatusFailed, r.Results["2"].Status)
	assert.Equal(t, entity.StatusTimedOut, r.Results["3"].Status)
	assert.Equal(t, entity.StatusSkipped, r.Results["4"].Status)
	assert.Equal(t, entity.Summary{Succeeded: 1, Failed: 1, TimedOut: 1, Skipped: 1}, r.Summary)
	assert.Equal(t, 4, r.Summary.Total())
	assert.False(t, r.Ok())
	assert.Equal(t, 1, r.ExitCode())
}

func TestAggregateLaterSuccessWins(t *testing.T) {
	records := []entity.AttemptRecord{
		{TargetID: "1", Attempt: 1, TimedOut: true, Err: &breverrors.AttemptTimeoutError{ServerID: "1", Timeout: time.Second}},
		{TargetID: "1", Attempt: 2, ExitCode: 0},
	}

	r := Aggregate("req-1", []string{"1"}, records)
	assert.Equal(t, entity.StatusSucceeded, r.Results["1"].Status)
	assert.Equal(t, 0, r.ExitCode())
}

func TestAggregateAttemptOrderIndependent(t *testing.T) {
	forward := []entity.AttemptRecord{
		{TargetID: "1", Attempt: 1, ExitCode: 1, Err: &breverrors.RemoteExecutionError{ServerID: "1", ExitCode: 1}},
		{TargetID: "1", Attempt: 2, ExitCode: 0},
	}
	reversed := []entity.AttemptRecord{forward[1], forward[0]}

	a := Aggregate("req-1", []string{"1"}, forward)
	b := Aggregate("req-1", []string{"1"}, reversed)
	assert.Equal(t, a, b)
}

func TestAggregateIdempotent(t *testing.T) {
	targetIDs := []string{"1", "2"}
	records := []entity.AttemptRecord{
		{TargetID: "1", Attempt: 1, ExitCode: 0},
		{TargetID: "2", Attempt: 1, ExitCode: 1, Err: &breverrors.RemoteExecutionError{ServerID: "2", ExitCode: 1}},
	}

	once := Aggregate("req-1", targetIDs, records)
	twice := Aggregate("req-1", targetIDs, Records(once, targetIDs))
	require.Equal(t, once.Summary, twice.Summary)
	assert.Equal(t, once, twice)
}

func TestAggregateEmptyInput(t *testing.T) {
	r := Aggregate("req-1", nil, nil)
	assert.Empty(t, r.Results)
	assert.True(t, r.Ok())
	assert.Equal(t, 0, r.ExitCode())
}
