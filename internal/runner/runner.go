// Package runner executes a single update-branch run.
package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/logfields"
	"github.com/simplesurance/update-branch/internal/record"
)

const loggerName = "runner"

// IdentityProvider returns the login of the user the runner acts as.
type IdentityProvider interface {
	ViewerLogin(ctx context.Context) (string, error)
}

// Coordinator computes the next record state.
type Coordinator interface {
	Run(ctx context.Context, current record.Body) (record.Body, error)
}

// LockFactory returns the record lock of the issues created by author.
type LockFactory func(author string) record.Lock

// Runner acquires the record lock, runs the Coordinator and always stores
// the resulting state when the lock was acquired.
type Runner struct {
	identity    IdentityProvider
	newLock     LockFactory
	coordinator Coordinator
	logger      *zap.Logger
}

func New(identity IdentityProvider, newLock LockFactory, coordinator Coordinator) *Runner {
	return &Runner{
		identity:    identity,
		newLock:     newLock,
		coordinator: coordinator,
		logger:      zap.L().Named(loggerName),
	}
}

// Run executes one run.
// If another run holds the lock, nil is returned without doing anything.
// When the lock was acquired, the next state is stored and the lock is
// released before Run returns, also when the coordinator failed. If the
// coordinator failed, an empty state is stored.
func (r *Runner) Run(ctx context.Context) (err error) {
	login, err := r.identity.ViewerLogin(ctx)
	if err != nil {
		metrics.RunInc(resultFailure)
		return fmt.Errorf("resolving acting identity failed: %w", err)
	}

	logger := r.logger.With(logfields.Login(login))
	lock := r.newLock(login)

	current, acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		metrics.RunInc(resultFailure)
		return err
	}

	if !acquired {
		logger.Info("other actions are editing record, exiting", logfields.Event("run_skipped_record_locked"))
		metrics.RunInc(resultLocked)
		return nil
	}

	logger.Debug(
		"record lock acquired",
		logfields.Event("run_started"),
		zap.Stringer("record", &current),
	)

	var next record.Body
	var completed bool
	defer func() {
		if releaseErr := lock.Release(ctx, next); releaseErr != nil {
			logger.Error(
				"storing record failed, the record stays locked until it is edited manually",
				logfields.Event("record_release_failed"),
				zap.Error(releaseErr),
			)

			err = errors.Join(err, releaseErr)
		}

		if !completed {
			logger.Error("coordinator panicked, record released", logfields.Event("run_aborted"))
			metrics.RunInc(resultFailure)
			return
		}

		if err != nil {
			metrics.RunInc(resultFailure)
			return
		}

		metrics.RunInc(resultSuccess)
		logger.Debug(
			"run finished",
			logfields.Event("run_finished"),
			zap.Stringer("record", &next),
		)
	}()

	result, err := r.coordinator.Run(ctx, current)
	completed = true
	if err != nil {
		return err
	}

	next = result

	return nil
}
