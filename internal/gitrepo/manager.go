package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vigiar/autosync/internal/execshell"
)

const (
	gitExecutorMissingMessageConstant           = "git executor not configured"
	worktreeCheckFailureTemplateConstant        = "failed to verify working tree: %w"
	unstagedCheckFailureTemplateConstant        = "failed to check unstaged changes: %w"
	stagedCheckFailureTemplateConstant          = "failed to check staged changes: %w"
	untrackedScanFailureTemplateConstant        = "failed to list untracked files: %w"
	stageFailureTemplateConstant                = "failed to stage changes: %w"
	commitFailureTemplateConstant               = "failed to create commit: %w"
	pushFailureTemplateConstant                 = "failed to push %s to %s: %w"
	gitRevParseSubcommandConstant               = "rev-parse"
	gitWorkTreeFlagConstant                     = "--is-inside-work-tree"
	gitDiffSubcommandConstant                   = "diff"
	gitDiffQuietFlagConstant                    = "--quiet"
	gitDiffCachedFlagConstant                   = "--cached"
	gitLSFilesSubcommandConstant                = "ls-files"
	gitLSFilesOthersFlagConstant                = "--others"
	gitLSFilesExcludeStandardFlagConstant       = "--exclude-standard"
	gitAddSubcommandConstant                    = "add"
	gitAddAllFlagConstant                       = "--all"
	gitCommitSubcommandConstant                 = "commit"
	gitCommitMessageFlagConstant                = "-m"
	gitPushSubcommandConstant                   = "push"
	gitPathspecSeparatorConstant                = "--"
	gitTrueOutputConstant                       = "true"
	gitDirtyWorktreeExitCodeConstant            = 1
	gitTerminalPromptEnvironmentNameConstant    = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentDisableConstant = "0"
	newlineConstant                             = "\n"
)

// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// GitExecutor exposes the subset of shell execution used by the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager performs git operations against an explicit repository path.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager around the provided executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// IsWorkingTree reports whether the path is inside an accessible git working tree.
func (manager *RepositoryManager) IsWorkingTree(executionContext context.Context, repositoryPath string) (bool, error) {
	result, executionError := manager.executeGit(executionContext, repositoryPath, []string{gitRevParseSubcommandConstant, gitWorkTreeFlagConstant})
	if executionError != nil {
		if isCommandFailure(executionError) {
			return false, nil
		}
		return false, fmt.Errorf(worktreeCheckFailureTemplateConstant, executionError)
	}
	return strings.TrimSpace(result.StandardOutput) == gitTrueOutputConstant, nil
}

// HasUnstagedChanges reports whether tracked files carry modifications not yet staged.
func (manager *RepositoryManager) HasUnstagedChanges(executionContext context.Context, repositoryPath string, scopePaths []string) (bool, error) {
	arguments := appendPathspec([]string{gitDiffSubcommandConstant, gitDiffQuietFlagConstant}, scopePaths)
	dirty, checkError := manager.runDirtinessCheck(executionContext, repositoryPath, arguments)
	if checkError != nil {
		return false, fmt.Errorf(unstagedCheckFailureTemplateConstant, checkError)
	}
	return dirty, nil
}

// HasStagedChanges reports whether staged modifications are awaiting a commit.
func (manager *RepositoryManager) HasStagedChanges(executionContext context.Context, repositoryPath string, scopePaths []string) (bool, error) {
	arguments := appendPathspec([]string{gitDiffSubcommandConstant, gitDiffCachedFlagConstant, gitDiffQuietFlagConstant}, scopePaths)
	dirty, checkError := manager.runDirtinessCheck(executionContext, repositoryPath, arguments)
	if checkError != nil {
		return false, fmt.Errorf(stagedCheckFailureTemplateConstant, checkError)
	}
	return dirty, nil
}

// ListUntrackedFiles returns untracked files not excluded by ignore rules.
func (manager *RepositoryManager) ListUntrackedFiles(executionContext context.Context, repositoryPath string, scopePaths []string) ([]string, error) {
	arguments := appendPathspec([]string{gitLSFilesSubcommandConstant, gitLSFilesOthersFlagConstant, gitLSFilesExcludeStandardFlagConstant}, scopePaths)
	result, executionError := manager.executeGit(executionContext, repositoryPath, arguments)
	if executionError != nil {
		return nil, fmt.Errorf(untrackedScanFailureTemplateConstant, executionError)
	}

	untrackedFiles := []string{}
	for _, outputLine := range strings.Split(result.StandardOutput, newlineConstant) {
		trimmedLine := strings.TrimSpace(outputLine)
		if len(trimmedLine) > 0 {
			untrackedFiles = append(untrackedFiles, trimmedLine)
		}
	}
	return untrackedFiles, nil
}

// StageAll stages every modified, added, and deleted file in the working tree.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string, scopePaths []string) error {
	arguments := appendPathspec([]string{gitAddSubcommandConstant, gitAddAllFlagConstant}, scopePaths)
	if _, executionError := manager.executeGit(executionContext, repositoryPath, arguments); executionError != nil {
		return fmt.Errorf(stageFailureTemplateConstant, executionError)
	}
	return nil
}

// CreateCommit records the staged set under the supplied commit message.
func (manager *RepositoryManager) CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error {
	arguments := []string{gitCommitSubcommandConstant, gitCommitMessageFlagConstant, commitMessage}
	if _, executionError := manager.executeGit(executionContext, repositoryPath, arguments); executionError != nil {
		return fmt.Errorf(commitFailureTemplateConstant, executionError)
	}
	return nil
}

// Push publishes local commits to the named remote branch.
func (manager *RepositoryManager) Push(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error {
	arguments := []string{gitPushSubcommandConstant, remoteName, branchName}
	if _, executionError := manager.executeGit(executionContext, repositoryPath, arguments); executionError != nil {
		return fmt.Errorf(pushFailureTemplateConstant, branchName, remoteName, executionError)
	}
	return nil
}

// runDirtinessCheck interprets --quiet diff exit codes: zero means clean, one means dirty.
func (manager *RepositoryManager) runDirtinessCheck(executionContext context.Context, repositoryPath string, arguments []string) (bool, error) {
	_, executionError := manager.executeGit(executionContext, repositoryPath, arguments)
	if executionError == nil {
		return false, nil
	}

	var failedError execshell.CommandFailedError
	if errors.As(executionError, &failedError) && failedError.Result.ExitCode == gitDirtyWorktreeExitCodeConstant {
		return true, nil
	}
	return false, executionError
}

func (manager *RepositoryManager) executeGit(executionContext context.Context, repositoryPath string, arguments []string) (execshell.ExecutionResult, error) {
	return manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
		EnvironmentVariables: map[string]string{
			gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentDisableConstant,
		},
	})
}

func appendPathspec(arguments []string, scopePaths []string) []string {
	if len(scopePaths) == 0 {
		return arguments
	}
	arguments = append(arguments, gitPathspecSeparatorConstant)
	return append(arguments, scopePaths...)
}

func isCommandFailure(candidateError error) bool {
	var failedError execshell.CommandFailedError
	return errors.As(candidateError, &failedError)
}
