package autocommit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigiar/autosync/internal/execshell"
	"github.com/vigiar/autosync/internal/gitrepo"
	pathutils "github.com/vigiar/autosync/internal/utils/path"
)

const (
	syncCommandUseConstant                   = "sync"
	syncCommandShortDescriptionConstant      = "Stage, commit, and push pending repository changes"
	syncCommandLongDescriptionConstant       = "sync checks the configured repository for unstaged, staged, or untracked changes and, when any exist, stages everything, records a timestamped commit, and pushes it to the configured remote branch."
	repositoryFlagNameConstant               = "repository"
	repositoryFlagUsageConstant              = "Path to the repository working tree."
	remoteFlagNameConstant                   = "remote"
	remoteFlagUsageConstant                  = "Name of the git remote to push to."
	branchFlagNameConstant                   = "branch"
	branchFlagUsageConstant                  = "Name of the branch to push."
	pathsFlagNameConstant                    = "paths"
	pathsFlagUsageConstant                   = "Restrict change detection and staging to these paths."
	dryRunFlagNameConstant                   = "dry-run"
	dryRunFlagUsageConstant                  = "Report pending changes without committing or pushing."
	defaultRemoteNameConstant                = "origin"
	defaultBranchNameConstant                = "main"
	repositoryConfigurationKeySuffixConstant = ".repository"
	remoteConfigurationKeySuffixConstant     = ".remote"
	branchConfigurationKeySuffixConstant     = ".branch"
	pathsConfigurationKeySuffixConstant      = ".paths"
	missingRepositoryMessageConstant         = "repository path is required; supply --repository or configure sync.repository"
	cleanOutputMessageConstant               = "No changes detected."
	committedOutputMessageConstant           = "Changes committed and pushed."
	dryRunOutputTemplateConstant             = "Changes detected; dry run, skipping commit (%d untracked files).\n"
)

// CommandConfiguration captures the configured sync settings.
type CommandConfiguration struct {
	Repository string   `mapstructure:"repository"`
	Remote     string   `mapstructure:"remote"`
	Branch     string   `mapstructure:"branch"`
	Paths      []string `mapstructure:"paths"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + repositoryConfigurationKeySuffixConstant: "",
		configurationKeyPrefix + remoteConfigurationKeySuffixConstant:     defaultRemoteNameConstant,
		configurationKeyPrefix + branchConfigurationKeySuffixConstant:     defaultBranchNameConstant,
		configurationKeyPrefix + pathsConfigurationKeySuffixConstant:      []string{},
	}
}

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the sync command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	RepositoryManager            RepositoryManager
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
}

// Build constructs the sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   syncCommandUseConstant,
		Short: syncCommandShortDescriptionConstant,
		Long:  syncCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
	command.Flags().String(remoteFlagNameConstant, "", remoteFlagUsageConstant)
	command.Flags().String(branchFlagNameConstant, "", branchFlagUsageConstant)
	command.Flags().StringSlice(pathsFlagNameConstant, nil, pathsFlagUsageConstant)
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.resolveSyncOptions(command)
	if optionsError != nil {
		return optionsError
	}

	dryRunRequested, dryRunFlagError := command.Flags().GetBool(dryRunFlagNameConstant)
	if dryRunFlagError != nil {
		return dryRunFlagError
	}
	options.DryRun = dryRunRequested

	service, serviceError := builder.resolveService()
	if serviceError != nil {
		return serviceError
	}

	result, syncError := service.Sync(command.Context(), options)
	if syncError != nil {
		return syncError
	}

	switch result.Outcome {
	case OutcomeClean:
		fmt.Fprintln(command.OutOrStdout(), cleanOutputMessageConstant)
	case OutcomeDryRun:
		fmt.Fprintf(command.OutOrStdout(), dryRunOutputTemplateConstant, len(result.UntrackedFiles))
	default:
		fmt.Fprintln(command.OutOrStdout(), committedOutputMessageConstant)
	}

	return nil
}

// resolveSyncOptions merges configuration values with any flag overrides.
func (builder *CommandBuilder) resolveSyncOptions(command *cobra.Command) (Options, error) {
	configuration := builder.resolveConfiguration()

	repositoryPath := strings.TrimSpace(configuration.Repository)
	remoteName := strings.TrimSpace(configuration.Remote)
	branchName := strings.TrimSpace(configuration.Branch)
	watchedPaths := configuration.Paths

	if command.Flags().Changed(repositoryFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(repositoryFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		repositoryPath = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(remoteFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(remoteFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		remoteName = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(branchFlagNameConstant) {
		flagValue, flagError := command.Flags().GetString(branchFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		branchName = strings.TrimSpace(flagValue)
	}
	if command.Flags().Changed(pathsFlagNameConstant) {
		flagValues, flagError := command.Flags().GetStringSlice(pathsFlagNameConstant)
		if flagError != nil {
			return Options{}, flagError
		}
		watchedPaths = flagValues
	}

	sanitizedRepositoryPaths := pathutils.NewRepositoryPathSanitizer().Sanitize([]string{repositoryPath})
	if len(sanitizedRepositoryPaths) == 0 {
		return Options{}, errors.New(missingRepositoryMessageConstant)
	}

	if len(remoteName) == 0 {
		remoteName = defaultRemoteNameConstant
	}
	if len(branchName) == 0 {
		branchName = defaultBranchNameConstant
	}

	return Options{
		RepositoryPath: sanitizedRepositoryPaths[0],
		RemoteName:     remoteName,
		BranchName:     branchName,
		WatchedPaths:   watchedPaths,
	}, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return CommandConfiguration{}
	}
	return builder.ConfigurationProvider()
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

// resolveService builds the sync service, creating the git tooling unless a manager was injected.
func (builder *CommandBuilder) resolveService() (*Service, error) {
	repositoryManager := builder.RepositoryManager
	if repositoryManager == nil {
		humanReadableLogging := false
		if builder.HumanReadableLoggingProvider != nil {
			humanReadableLogging = builder.HumanReadableLoggingProvider()
		}

		shellExecutor, executorError := execshell.NewShellExecutor(builder.resolveLogger(), execshell.NewOSCommandRunner(), humanReadableLogging)
		if executorError != nil {
			return nil, executorError
		}

		builtManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
		if managerError != nil {
			return nil, managerError
		}
		repositoryManager = builtManager
	}

	return NewService(Dependencies{RepositoryManager: repositoryManager})
}
