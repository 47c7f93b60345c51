package watch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vigiar/autosync/internal/autocommit"
	"github.com/vigiar/autosync/internal/watch"
)

const (
	watchTestRepositoryPathConstant = "/home/watcher/vigiar"
	watchTestIntervalConstant       = 10 * time.Millisecond
	watchTestTimeoutConstant        = 5 * time.Second
)

type scriptedSynchronizer struct {
	mutex          sync.Mutex
	outcomes       []autocommit.Outcome
	errors         []error
	callCount      int
	cancelAfter    int
	cancelFunction context.CancelFunc
}

func (synchronizer *scriptedSynchronizer) Sync(executionContext context.Context, options autocommit.Options) (autocommit.Result, error) {
	synchronizer.mutex.Lock()
	defer synchronizer.mutex.Unlock()

	callIndex := synchronizer.callCount
	synchronizer.callCount++

	if synchronizer.cancelFunction != nil && synchronizer.callCount >= synchronizer.cancelAfter {
		synchronizer.cancelFunction()
	}

	if callIndex < len(synchronizer.errors) && synchronizer.errors[callIndex] != nil {
		return autocommit.Result{}, synchronizer.errors[callIndex]
	}

	outcome := autocommit.OutcomeClean
	if callIndex < len(synchronizer.outcomes) {
		outcome = synchronizer.outcomes[callIndex]
	}
	return autocommit.Result{RepositoryPath: options.RepositoryPath, Outcome: outcome}, nil
}

func (synchronizer *scriptedSynchronizer) calls() int {
	synchronizer.mutex.Lock()
	defer synchronizer.mutex.Unlock()
	return synchronizer.callCount
}

type fakeProcessLock struct {
	acquireError  error
	acquireCalled bool
	releaseCalled bool
}

func (processLock *fakeProcessLock) Acquire() error {
	processLock.acquireCalled = true
	return processLock.acquireError
}

func (processLock *fakeProcessLock) Release() error {
	processLock.releaseCalled = true
	return nil
}

func newObservedWatchService(testInstance *testing.T, synchronizer watch.Synchronizer, processLock watch.ProcessLock) (*watch.Service, *observer.ObservedLogs) {
	testInstance.Helper()
	observedCore, observedLogs := observer.New(zap.DebugLevel)
	service, creationError := watch.NewService(watch.Dependencies{
		Synchronizer: synchronizer,
		Logger:       zap.New(observedCore),
		ProcessLock:  processLock,
	})
	require.NoError(testInstance, creationError)
	return service, observedLogs
}

func defaultWatchOptions() watch.Options {
	return watch.Options{
		SyncOptions: autocommit.Options{
			RepositoryPath: watchTestRepositoryPathConstant,
			RemoteName:     "origin",
			BranchName:     "main",
		},
		Interval: watchTestIntervalConstant,
	}
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	testCases := []struct {
		name          string
		dependencies  watch.Dependencies
		expectedError error
	}{
		{
			name:          "missing_synchronizer",
			dependencies:  watch.Dependencies{Logger: zap.NewNop()},
			expectedError: watch.ErrSynchronizerNotConfigured,
		},
		{
			name:          "missing_logger",
			dependencies:  watch.Dependencies{Synchronizer: &scriptedSynchronizer{}},
			expectedError: watch.ErrLoggerNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			service, creationError := watch.NewService(testCase.dependencies)
			require.Nil(testInstance, service)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
		})
	}
}

func TestRunRejectsNonPositiveInterval(testInstance *testing.T) {
	service, _ := newObservedWatchService(testInstance, &scriptedSynchronizer{}, nil)

	options := defaultWatchOptions()
	options.Interval = 0

	runError := service.Run(context.Background(), options)
	require.ErrorIs(testInstance, runError, watch.ErrIntervalNotPositive)
}

func TestRunFailsWhenLockIsHeld(testInstance *testing.T) {
	lockFailure := errors.New("another autosync instance holds the lock")
	processLock := &fakeProcessLock{acquireError: lockFailure}
	synchronizer := &scriptedSynchronizer{}
	service, _ := newObservedWatchService(testInstance, synchronizer, processLock)

	runError := service.Run(context.Background(), defaultWatchOptions())
	require.ErrorIs(testInstance, runError, lockFailure)
	require.Zero(testInstance, synchronizer.calls())
	require.False(testInstance, processLock.releaseCalled)
}

func TestRunSynchronizesOnStartupAndInterval(testInstance *testing.T) {
	executionContext, cancelFunction := context.WithTimeout(context.Background(), watchTestTimeoutConstant)
	defer cancelFunction()

	synchronizer := &scriptedSynchronizer{cancelAfter: 3, cancelFunction: cancelFunction}
	processLock := &fakeProcessLock{}
	service, _ := newObservedWatchService(testInstance, synchronizer, processLock)

	runError := service.Run(executionContext, defaultWatchOptions())
	require.ErrorIs(testInstance, runError, context.Canceled)
	require.GreaterOrEqual(testInstance, synchronizer.calls(), 3)
	require.True(testInstance, processLock.acquireCalled)
	require.True(testInstance, processLock.releaseCalled)
}

func TestRunStopsAfterFirstCommitWhenRequested(testInstance *testing.T) {
	synchronizer := &scriptedSynchronizer{outcomes: []autocommit.Outcome{autocommit.OutcomeCommitted}}
	service, observedLogs := newObservedWatchService(testInstance, synchronizer, nil)

	options := defaultWatchOptions()
	options.StopAfterFirstCommit = true

	runError := service.Run(context.Background(), options)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, synchronizer.calls())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Changes committed and pushed").Len())
}

func TestRunContinuesAfterSyncFailure(testInstance *testing.T) {
	executionContext, cancelFunction := context.WithTimeout(context.Background(), watchTestTimeoutConstant)
	defer cancelFunction()

	syncFailure := errors.New("failed to stage changes")
	synchronizer := &scriptedSynchronizer{
		errors:         []error{syncFailure},
		cancelAfter:    2,
		cancelFunction: cancelFunction,
	}
	service, observedLogs := newObservedWatchService(testInstance, synchronizer, nil)

	runError := service.Run(executionContext, defaultWatchOptions())
	require.ErrorIs(testInstance, runError, context.Canceled)
	require.GreaterOrEqual(testInstance, synchronizer.calls(), 2)
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Sync cycle failed").Len())
}
