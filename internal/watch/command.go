package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigiar/autosync/internal/autocommit"
	"github.com/vigiar/autosync/internal/execshell"
	"github.com/vigiar/autosync/internal/gitrepo"
	"github.com/vigiar/autosync/internal/lock"
	pathutils "github.com/vigiar/autosync/internal/utils/path"
)

const (
	watchCommandUseConstant                = "watch"
	watchCommandShortDescriptionConstant   = "Continuously commit and push repository changes"
	watchCommandLongDescriptionConstant    = "watch keeps a repository synchronized by running the sync cycle on a fixed interval and, when filesystem events are available, immediately after changes settle. A per-repository lock prevents concurrent watchers."
	repositoryFlagNameConstant             = "repository"
	repositoryFlagUsageConstant            = "Path to the repository working tree."
	remoteFlagNameConstant                 = "remote"
	remoteFlagUsageConstant                = "Name of the git remote to push to."
	branchFlagNameConstant                 = "branch"
	branchFlagUsageConstant                = "Name of the branch to push."
	pathsFlagNameConstant                  = "paths"
	pathsFlagUsageConstant                 = "Restrict change detection and staging to these paths."
	intervalFlagNameConstant               = "interval"
	intervalFlagUsageConstant              = "Polling interval between sync cycles."
	debounceFlagNameConstant               = "debounce"
	debounceFlagUsageConstant              = "Quiet period after a filesystem event before syncing."
	fsEventsFlagNameConstant               = "fs-events"
	fsEventsFlagUsageConstant              = "React to filesystem events in addition to interval polling."
	defaultRemoteNameConstant              = "origin"
	defaultBranchNameConstant              = "main"
	defaultIntervalDurationConstant        = 30 * time.Second
	intervalConfigurationKeySuffixConstant = ".interval"
	debounceConfigurationKeySuffixConstant = ".debounce"
	missingRepositoryMessageConstant       = "repository path is required; supply --repository or configure sync.repository"
	defaultIntervalConfigurationConstant   = "30s"
	defaultDebounceConfigurationConstant   = "2s"
)

// CommandConfiguration captures the configured watch loop settings.
type CommandConfiguration struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + intervalConfigurationKeySuffixConstant: defaultIntervalConfigurationConstant,
		configurationKeyPrefix + debounceConfigurationKeySuffixConstant: defaultDebounceConfigurationConstant,
	}
}

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the watch command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	Synchronizer                 Synchronizer
	ProcessLockFactory           func(repositoryPath string) ProcessLock
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	SyncConfigurationProvider    func() autocommit.CommandConfiguration
}

// Build constructs the watch command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   watchCommandUseConstant,
		Short: watchCommandShortDescriptionConstant,
		Long:  watchCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
	command.Flags().String(remoteFlagNameConstant, "", remoteFlagUsageConstant)
	command.Flags().String(branchFlagNameConstant, "", branchFlagUsageConstant)
	command.Flags().StringSlice(pathsFlagNameConstant, nil, pathsFlagUsageConstant)
	command.Flags().Duration(intervalFlagNameConstant, defaultIntervalDurationConstant, intervalFlagUsageConstant)
	command.Flags().Duration(debounceFlagNameConstant, defaultDebounceDurationConstant, debounceFlagUsageConstant)
	command.Flags().Bool(fsEventsFlagNameConstant, true, fsEventsFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	syncOptions, syncOptionsError := builder.resolveSyncOptions(command)
	if syncOptionsError != nil {
		return syncOptionsError
	}

	watchOptions, watchOptionsError := builder.resolveWatchOptions(command, syncOptions)
	if watchOptionsError != nil {
		return watchOptionsError
	}

	logger := builder.resolveLogger()

	synchronizer, synchronizerError := builder.resolveSynchronizer(logger)
	if synchronizerError != nil {
		return synchronizerError
	}

	service, serviceError := NewService(Dependencies{
		Synchronizer: synchronizer,
		Logger:       logger,
		ProcessLock:  builder.resolveProcessLock(syncOptions.RepositoryPath),
	})
	if serviceError != nil {
		return serviceError
	}

	runError := service.Run(command.Context(), watchOptions)
	if errors.Is(runError, context.Canceled) {
		return nil
	}
	return runError
}

// resolveSyncOptions merges sync configuration values with any flag overrides.
func (builder *CommandBuilder) resolveSyncOptions(command *cobra.Command) (autocommit.Options, error) {
	configuration := builder.resolveSyncConfiguration()

	repositoryPath := strings.TrimSpace(configuration.Repository)
	remoteName := strings.TrimSpace(configuration.Remote)
	branchName := strings.TrimSpace(configuration.Branch)
	watchedPaths := configuration.Paths

	if command.Flags().Changed(repositoryFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(repositoryFlagNameConstant)
		if flagError != nil {
			return autocommit.Options{}, flagError
		}
		repositoryPath = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(remoteFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(remoteFlagNameConstant)
		if flagError != nil {
			return autocommit.Options{}, flagError
		}
		remoteName = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(branchFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(branchFlagNameConstant)
		if flagError != nil {
			return autocommit.Options{}, flagError
		}
		branchName = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(pathsFlagNameConstant) {
		flagValues, flagError := command.Flags().GetStringSlice(pathsFlagNameConstant)
		if flagError != nil {
			return autocommit.Options{}, flagError
		}
		watchedPaths = flagValues
	}

	sanitizedRepositoryPaths := pathutils.NewRepositoryPathSanitizer().Sanitize([]string{repositoryPath})
	if len(sanitizedRepositoryPaths) == 0 {
		return autocommit.Options{}, errors.New(missingRepositoryMessageConstant)
	}

	if len(remoteName) == 0 {
		remoteName = defaultRemoteNameConstant
	}
	if len(branchName) == 0 {
		branchName = defaultBranchNameConstant
	}

	return autocommit.Options{
		RepositoryPath: sanitizedRepositoryPaths[0],
		RemoteName:     remoteName,
		BranchName:     branchName,
		WatchedPaths:   watchedPaths,
	}, nil
}

func (builder *CommandBuilder) resolveWatchOptions(command *cobra.Command, syncOptions autocommit.Options) (Options, error) {
	configuration := builder.resolveConfiguration()

	interval := configuration.Interval
	if interval <= 0 {
		interval = defaultIntervalDurationConstant
	}
	debounce := configuration.Debounce

	if command.Flags().Changed(intervalFlagNameConstant) {
		flagValue, flagError := command.Flags().GetDuration(intervalFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		interval = flagValue
	}
	if command.Flags().Changed(debounceFlagNameConstant) {
		flagValue, flagError := command.Flags().GetDuration(debounceFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		debounce = flagValue
	}

	watchFilesystem, fsEventsFlagError := command.Flags().GetBool(fsEventsFlagNameConstant)
	if fsEventsFlagError != nil {
		return Options{}, fsEventsFlagError
	}

	return Options{
		SyncOptions:     syncOptions,
		Interval:        interval,
		Debounce:        debounce,
		WatchFilesystem: watchFilesystem,
	}, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return CommandConfiguration{}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveSyncConfiguration() autocommit.CommandConfiguration {
	if builder.SyncConfigurationProvider == nil {
		return autocommit.CommandConfiguration{}
	}
	return builder.SyncConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	if logger := builder.LoggerProvider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveProcessLock(repositoryPath string) ProcessLock {
	if builder.ProcessLockFactory != nil {
		return builder.ProcessLockFactory(repositoryPath)
	}
	return lock.NewProcessLock(repositoryPath)
}

// resolveSynchronizer builds the sync service, creating the git tooling unless one was injected.
func (builder *CommandBuilder) resolveSynchronizer(logger *zap.Logger) (Synchronizer, error) {
	if builder.Synchronizer != nil {
		return builder.Synchronizer, nil
	}

	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), humanReadableLogging)
	if executorError != nil {
		return nil, executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return nil, managerError
	}

	return autocommit.NewService(autocommit.Dependencies{RepositoryManager: repositoryManager})
}
