package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vigiar/autosync/internal/autocommit"
)

const (
	synchronizerMissingMessageConstant    = "synchronizer not configured"
	loggerMissingMessageConstant          = "logger not configured"
	intervalNotPositiveMessageConstant    = "watch interval must be positive"
	lockAcquireErrorTemplateConstant      = "failed to acquire watch lock: %w"
	watcherUnavailableMessageConstant     = "Filesystem watcher unavailable, relying on interval polling"
	defaultDebounceDurationConstant       = 2 * time.Second
	watchStartedMessageConstant           = "Watching repository"
	watchStoppedMessageConstant           = "Watch stopped"
	syncFailedMessageConstant             = "Sync cycle failed"
	changesCommittedMessageConstant       = "Changes committed and pushed"
	cleanCycleMessageConstant             = "No changes detected"
	filesystemEventMessageConstant        = "Filesystem change detected"
	watcherErrorMessageConstant           = "Filesystem watcher error"
	repositoryFieldNameConstant           = "repository"
	intervalFieldNameConstant             = "interval"
	commitMessageFieldNameConstant        = "commit_message"
	eventFieldNameConstant                = "event"
	triggerFieldNameConstant              = "trigger"
	triggerIntervalValueConstant          = "interval"
	triggerFilesystemValueConstant        = "filesystem"
	triggerStartupValueConstant           = "startup"
	gitMetadataDirectoryElementConstant   = ".git"
	gitMetadataDirectorySeparatorConstant = string(filepath.Separator)
)

// ErrSynchronizerNotConfigured indicates the synchronizer dependency was missing.
var ErrSynchronizerNotConfigured = errors.New(synchronizerMissingMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrIntervalNotPositive indicates a zero or negative watch interval.
var ErrIntervalNotPositive = errors.New(intervalNotPositiveMessageConstant)

// Synchronizer runs one stage-commit-push cycle against a repository.
type Synchronizer interface {
	Sync(executionContext context.Context, options autocommit.Options) (autocommit.Result, error)
}

// ProcessLock serializes watchers operating on the same repository.
type ProcessLock interface {
	Acquire() error
	Release() error
}

// Dependencies enumerates external collaborators required by the watch service.
type Dependencies struct {
	Synchronizer Synchronizer
	Logger       *zap.Logger
	ProcessLock  ProcessLock
}

// Options configures a continuous watch run.
type Options struct {
	SyncOptions          autocommit.Options
	Interval             time.Duration
	Debounce             time.Duration
	WatchFilesystem      bool
	StopAfterFirstCommit bool
}

// Service repeatedly synchronizes a repository until its context is canceled.
type Service struct {
	synchronizer Synchronizer
	logger       *zap.Logger
	processLock  ProcessLock
}

// NewService constructs a watch Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Synchronizer == nil {
		return nil, ErrSynchronizerNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	return &Service{
		synchronizer: dependencies.Synchronizer,
		logger:       dependencies.Logger,
		processLock:  dependencies.ProcessLock,
	}, nil
}

// Run watches the repository until the context is canceled or a fatal error occurs.
func (service *Service) Run(executionContext context.Context, options Options) error {
	if options.Interval <= 0 {
		return ErrIntervalNotPositive
	}

	debounceDuration := options.Debounce
	if debounceDuration <= 0 {
		debounceDuration = defaultDebounceDurationConstant
	}

	if service.processLock != nil {
		if lockError := service.processLock.Acquire(); lockError != nil {
			return fmt.Errorf(lockAcquireErrorTemplateConstant, lockError)
		}
		defer func() {
			_ = service.processLock.Release()
		}()
	}

	filesystemEvents, watcherCleanup := service.openFilesystemEvents(options)
	defer watcherCleanup()

	service.logger.Info(watchStartedMessageConstant,
		zap.String(repositoryFieldNameConstant, options.SyncOptions.RepositoryPath),
		zap.Duration(intervalFieldNameConstant, options.Interval),
	)
	defer service.logger.Info(watchStoppedMessageConstant,
		zap.String(repositoryFieldNameConstant, options.SyncOptions.RepositoryPath),
	)

	if stop := service.runCycle(executionContext, options, triggerStartupValueConstant); stop {
		return nil
	}

	intervalTicker := time.NewTicker(options.Interval)
	defer intervalTicker.Stop()

	var debounceTimer *time.Timer
	var debounceExpirations <-chan time.Time

	for {
		select {
		case <-executionContext.Done():
			return executionContext.Err()
		case <-intervalTicker.C:
			if stop := service.runCycle(executionContext, options, triggerIntervalValueConstant); stop {
				return nil
			}
		case filesystemEvent, channelOpen := <-filesystemEvents:
			if !channelOpen {
				filesystemEvents = nil
				continue
			}
			if isGitMetadataPath(options.SyncOptions.RepositoryPath, filesystemEvent.Name) {
				continue
			}
			service.logger.Debug(filesystemEventMessageConstant,
				zap.String(eventFieldNameConstant, filesystemEvent.String()),
			)
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(debounceDuration)
				debounceExpirations = debounceTimer.C
			} else {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDuration)
			}
		case <-debounceExpirations:
			debounceTimer = nil
			debounceExpirations = nil
			if stop := service.runCycle(executionContext, options, triggerFilesystemValueConstant); stop {
				return nil
			}
		}
	}
}

// runCycle performs one sync and reports whether the watch loop should stop.
func (service *Service) runCycle(executionContext context.Context, options Options, trigger string) bool {
	result, syncError := service.synchronizer.Sync(executionContext, options.SyncOptions)
	if syncError != nil {
		service.logger.Error(syncFailedMessageConstant,
			zap.String(repositoryFieldNameConstant, options.SyncOptions.RepositoryPath),
			zap.String(triggerFieldNameConstant, trigger),
			zap.Error(syncError),
		)
		return false
	}

	switch result.Outcome {
	case autocommit.OutcomeCommitted:
		service.logger.Info(changesCommittedMessageConstant,
			zap.String(repositoryFieldNameConstant, result.RepositoryPath),
			zap.String(triggerFieldNameConstant, trigger),
			zap.String(commitMessageFieldNameConstant, result.CommitMessage),
		)
		return options.StopAfterFirstCommit
	default:
		service.logger.Debug(cleanCycleMessageConstant,
			zap.String(repositoryFieldNameConstant, result.RepositoryPath),
			zap.String(triggerFieldNameConstant, trigger),
		)
		return false
	}
}

// openFilesystemEvents wires fsnotify when requested. Watcher failures are not
// fatal; the interval ticker keeps the loop alive without events. The returned
// cleanup is always safe to call.
func (service *Service) openFilesystemEvents(options Options) (<-chan fsnotify.Event, func()) {
	if !options.WatchFilesystem {
		return nil, func() {}
	}

	filesystemWatcher, creationError := fsnotify.NewWatcher()
	if creationError != nil {
		service.logger.Warn(watcherUnavailableMessageConstant, zap.Error(creationError))
		return nil, func() {}
	}

	watchTargets := []string{options.SyncOptions.RepositoryPath}
	for _, watchedPath := range options.SyncOptions.WatchedPaths {
		watchTargets = append(watchTargets, filepath.Join(options.SyncOptions.RepositoryPath, watchedPath))
	}

	for _, watchTarget := range watchTargets {
		if registerError := filesystemWatcher.Add(watchTarget); registerError != nil {
			service.logger.Warn(watcherUnavailableMessageConstant, zap.Error(registerError))
			_ = filesystemWatcher.Close()
			return nil, func() {}
		}
	}

	go service.drainWatcherErrors(filesystemWatcher)

	return filesystemWatcher.Events, func() {
		_ = filesystemWatcher.Close()
	}
}

func (service *Service) drainWatcherErrors(filesystemWatcher *fsnotify.Watcher) {
	for watcherError := range filesystemWatcher.Errors {
		service.logger.Warn(watcherErrorMessageConstant, zap.Error(watcherError))
	}
}

// isGitMetadataPath reports whether the event path lies inside the repository's .git directory.
func isGitMetadataPath(repositoryPath string, eventPath string) bool {
	gitDirectoryPath := filepath.Join(repositoryPath, gitMetadataDirectoryElementConstant)
	return eventPath == gitDirectoryPath || strings.HasPrefix(eventPath, gitDirectoryPath+gitMetadataDirectorySeparatorConstant)
}
