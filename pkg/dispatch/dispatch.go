// Package dispatch runs commands and catalog operations against a target
// set, sequentially or across a bounded worker pool, with per-target retry.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/hbdev/hbd-cli/pkg/report"
	"github.com/hbdev/hbd-cli/pkg/session"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CommandResolver maps an operation name and server type to a command
// template. The dispatcher consults this mapping but does not own it.
type CommandResolver interface {
	Resolve(operation string, serverType entity.ServerType) (string, bool)
}

type Dispatcher struct {
	opener   session.SessionOpener
	resolver CommandResolver
	handle   entity.AgentHandle
	log      *zap.Logger

	// replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(opener session.SessionOpener, resolver CommandResolver, handle entity.AgentHandle, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		opener:   opener,
		resolver: resolver,
		handle:   handle,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Dispatch executes the request and returns the aggregated report. Per-target
// failures never propagate as errors; they only shape the report. Cancelling
// ctx stops new attempts and new target dispatches, but lets in-flight
// attempts run to their own timeout; targets never started come out skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, req entity.ExecutionRequest) (entity.ExecutionReport, error) {
	targets := req.Targets
	targetIDs := lo.Map(targets, func(s entity.ServerDescriptor, _ int) string { return s.ID })

	workers := 1
	if req.Parallel {
		workers = req.MaxWorkers
		if workers < 1 {
			workers = 1
		}
	}

	d.log.Debug("dispatching",
		zap.String("request", req.ID),
		zap.Int("targets", len(targets)),
		zap.Int("workers", workers))

	perTarget := make([][]entity.AttemptRecord, len(targets))
	g := &errgroup.Group{}
	g.SetLimit(workers)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			perTarget[i] = d.runTarget(ctx, req, target)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var records []entity.AttemptRecord
	for _, rs := range perTarget {
		records = append(records, rs...)
	}
	return report.Aggregate(req.ID, targetIDs, records), nil
}

// runTarget executes all attempts for one target. A panic while processing
// one target is recorded as that target's failure and never aborts siblings.
func (d *Dispatcher) runTarget(ctx context.Context, req entity.ExecutionRequest, target entity.ServerDescriptor) (records []entity.AttemptRecord) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while processing target",
				zap.String("target", target.ID),
				zap.Any("panic", r))
			records = append(records, entity.AttemptRecord{
				TargetID: target.ID,
				Attempt:  len(records) + 1,
				Start:    time.Now(),
				Err:      errors.Errorf("panic: %v", r),
			})
		}
	}()

	if ctx.Err() != nil {
		return nil // never started; aggregates as skipped
	}

	command, err := d.commandFor(req, target)
	if err != nil {
		return []entity.AttemptRecord{{
			TargetID: target.ID,
			Attempt:  1,
			Start:    time.Now(),
			Err:      err,
		}}
	}

	maxAttempts := req.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec := d.attempt(ctx, req, target, command, attempt)
		records = append(records, rec)
		if rec.Succeeded() {
			return records
		}
		if !breverrors.IsRetryable(rec.Err, req.RetryOnExitFailure) {
			return records
		}
		if attempt == maxAttempts {
			return records
		}
		d.log.Debug("retrying target",
			zap.String("target", target.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", req.RetryDelay),
			zap.Error(rec.Err))
		if err := d.sleep(ctx, req.RetryDelay); err != nil {
			return records // operator abort: no further attempts
		}
	}
	return records
}

// attempt opens one session, runs the command once, and releases the session
// on every exit path. The attempt is detached from operator cancellation so
// an in-flight command is bounded by its own timeout, not the abort.
func (d *Dispatcher) attempt(ctx context.Context, req entity.ExecutionRequest, target entity.ServerDescriptor, command string, attempt int) entity.AttemptRecord {
	start := time.Now()
	rec := entity.AttemptRecord{
		TargetID: target.ID,
		Attempt:  attempt,
		Start:    start,
	}

	sess, err := d.opener.Open(target, d.handle, req.Timeout)
	if err != nil {
		rec.Duration = time.Since(start)
		rec.Err = err
		rec.TimedOut = breverrors.IsTimeout(err)
		return rec
	}
	defer sess.Close() //nolint:errcheck // defer

	result, err := sess.Run(context.WithoutCancel(ctx), command, req.Timeout)
	rec.Duration = time.Since(start)
	rec.ExitCode = result.ExitCode
	rec.Stdout = result.Stdout
	rec.Stderr = result.Stderr
	rec.Err = err
	rec.TimedOut = breverrors.IsTimeout(err)
	return rec
}

func (d *Dispatcher) commandFor(req entity.ExecutionRequest, target entity.ServerDescriptor) (string, error) {
	template := req.Command
	if template == "" {
		tmpl, ok := d.resolver.Resolve(req.Operation, target.Type)
		if !ok {
			return "", errors.Errorf("no %q command for server type %q", req.Operation, target.Type)
		}
		template = tmpl
	}

	pairs := []string{"{self}", target.Addr}
	for key, value := range req.Params {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
