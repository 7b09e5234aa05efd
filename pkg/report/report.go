// Package report derives per-target outcomes from raw attempt records.
package report

import (
	"sort"

	"github.com/hbdev/hbd-cli/pkg/entity"
	"github.com/samber/lo"
)

// Aggregate is a total, pure function: it never fails and equal inputs yield
// an equal report, regardless of attempt ordering within a target. Targets
// with no attempts (never started) come out as skipped so operators can tell
// configuration problems apart from operational failures.
func Aggregate(requestID string, targetIDs []string, records []entity.AttemptRecord) entity.ExecutionReport {
	byTarget := lo.GroupBy(records, func(r entity.AttemptRecord) string { return r.TargetID })

	results := make(map[string]entity.TargetResult, len(targetIDs))
	summary := entity.Summary{}
	for _, id := range targetIDs {
		attempts := byTarget[id]
		sort.SliceStable(attempts, func(i, j int) bool {
			return attempts[i].Attempt < attempts[j].Attempt
		})
		status := deriveStatus(attempts)
		results[id] = entity.TargetResult{
			TargetID: id,
			Status:   status,
			Attempts: attempts,
		}
		switch status {
		case entity.StatusSucceeded:
			summary.Succeeded++
		case entity.StatusFailed:
			summary.Failed++
		case entity.StatusTimedOut:
			summary.TimedOut++
		case entity.StatusSkipped:
			summary.Skipped++
		}
	}

	return entity.ExecutionReport{
		RequestID: requestID,
		Results:   results,
		Summary:   summary,
	}
}

func deriveStatus(attempts []entity.AttemptRecord) entity.TargetStatus {
	if len(attempts) == 0 {
		return entity.StatusSkipped
	}
	timedOut := false
	for _, attempt := range attempts {
		if attempt.Succeeded() {
			return entity.StatusSucceeded
		}
		if attempt.TimedOut {
			timedOut = true
		}
	}
	if timedOut {
		return entity.StatusTimedOut
	}
	return entity.StatusFailed
}

// Records flattens a report back into its underlying attempt records, in
// target order. Aggregating the result again yields an identical summary.
func Records(r entity.ExecutionReport, targetIDs []string) []entity.AttemptRecord {
	var records []entity.AttemptRecord
	for _, id := range targetIDs {
		records = append(records, r.Results[id].Attempts...)
	}
	return records
}
