package autocommit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	repositoryPathRequiredMessageConstant     = "repository path must be provided"
	remoteNameRequiredMessageConstant         = "remote name must be provided"
	branchNameRequiredMessageConstant         = "branch name must be provided"
	repositoryManagerMissingMessageConstant   = "repository manager not configured"
	repositoryPathInaccessibleMessageConstant = "repository path is inaccessible"
	notAWorkingTreeMessageConstant            = "path is not a git working tree"
	accessibilityCheckErrorTemplateConstant   = "%w: %s: %v"
	worktreeVerificationErrorTemplateConstant = "failed to verify repository at %s: %w"
	notAWorkingTreeErrorTemplateConstant      = "%w: %s"
	statusCheckErrorTemplateConstant          = "failed to determine working tree status: %w"
	commitMessagePrefixConstant               = "Auto-commit on "
	commitTimestampLayoutConstant             = "2006-01-02 15:04:05"
)

// ErrRepositoryPathRequired indicates the repository path option was empty.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)

// ErrRemoteNameRequired indicates the remote name option was empty.
var ErrRemoteNameRequired = errors.New(remoteNameRequiredMessageConstant)

// ErrBranchNameRequired indicates the branch name option was empty.
var ErrBranchNameRequired = errors.New(branchNameRequiredMessageConstant)

// ErrRepositoryManagerNotConfigured indicates the repository manager dependency was missing.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrRepositoryPathInaccessible indicates the configured repository path could not be read.
var ErrRepositoryPathInaccessible = errors.New(repositoryPathInaccessibleMessageConstant)

// ErrNotAWorkingTree indicates the configured path exists but is not a git working tree.
var ErrNotAWorkingTree = errors.New(notAWorkingTreeMessageConstant)

// Outcome enumerates the observable results of a sync run.
type Outcome string

// Sync outcomes.
const (
	// OutcomeClean reports a working tree with nothing to commit.
	OutcomeClean Outcome = "clean"
	// OutcomeCommitted reports a successful stage, commit, and push.
	OutcomeCommitted Outcome = "committed"
	// OutcomeDryRun reports detected changes that were left untouched.
	OutcomeDryRun Outcome = "dry-run"
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FileSystem exposes the filesystem access needed to validate the repository path.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
}

type osFileSystem struct{}

func (osFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// RepositoryManager exposes the git operations the sync cycle performs.
type RepositoryManager interface {
	IsWorkingTree(executionContext context.Context, repositoryPath string) (bool, error)
	HasUnstagedChanges(executionContext context.Context, repositoryPath string, scopePaths []string) (bool, error)
	HasStagedChanges(executionContext context.Context, repositoryPath string, scopePaths []string) (bool, error)
	ListUntrackedFiles(executionContext context.Context, repositoryPath string, scopePaths []string) ([]string, error)
	StageAll(executionContext context.Context, repositoryPath string, scopePaths []string) error
	CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error
	Push(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error
}

// Dependencies enumerates external collaborators required for sync operations.
type Dependencies struct {
	RepositoryManager RepositoryManager
	Clock             Clock
	FileSystem        FileSystem
}

// Options configures a single sync run.
type Options struct {
	RepositoryPath string
	RemoteName     string
	BranchName     string
	WatchedPaths   []string
	DryRun         bool
}

// Result captures the observable outcome of a sync run.
type Result struct {
	RepositoryPath string
	Outcome        Outcome
	CommitMessage  string
	UntrackedFiles []string
}

// Service coordinates the watch, stage, commit, and push cycle through git.
type Service struct {
	repositoryManager RepositoryManager
	clock             Clock
	fileSystem        FileSystem
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}

	serviceClock := dependencies.Clock
	if serviceClock == nil {
		serviceClock = SystemClock{}
	}

	serviceFileSystem := dependencies.FileSystem
	if serviceFileSystem == nil {
		serviceFileSystem = osFileSystem{}
	}

	return &Service{
		repositoryManager: dependencies.RepositoryManager,
		clock:             serviceClock,
		fileSystem:        serviceFileSystem,
	}, nil
}

// Sync inspects the repository and commits and pushes any pending changes.
func (service *Service) Sync(executionContext context.Context, options Options) (Result, error) {
	trimmedRepositoryPath := strings.TrimSpace(options.RepositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return Result{}, ErrRepositoryPathRequired
	}

	trimmedRemoteName := strings.TrimSpace(options.RemoteName)
	if len(trimmedRemoteName) == 0 {
		return Result{}, ErrRemoteNameRequired
	}

	trimmedBranchName := strings.TrimSpace(options.BranchName)
	if len(trimmedBranchName) == 0 {
		return Result{}, ErrBranchNameRequired
	}

	if _, statError := service.fileSystem.Stat(trimmedRepositoryPath); statError != nil {
		return Result{}, fmt.Errorf(accessibilityCheckErrorTemplateConstant, ErrRepositoryPathInaccessible, trimmedRepositoryPath, statError)
	}

	isWorkingTree, worktreeError := service.repositoryManager.IsWorkingTree(executionContext, trimmedRepositoryPath)
	if worktreeError != nil {
		return Result{}, fmt.Errorf(worktreeVerificationErrorTemplateConstant, trimmedRepositoryPath, worktreeError)
	}
	if !isWorkingTree {
		return Result{}, fmt.Errorf(notAWorkingTreeErrorTemplateConstant, ErrNotAWorkingTree, trimmedRepositoryPath)
	}

	scopePaths := sanitizeScopePaths(options.WatchedPaths)

	hasUnstagedChanges, unstagedError := service.repositoryManager.HasUnstagedChanges(executionContext, trimmedRepositoryPath, scopePaths)
	if unstagedError != nil {
		return Result{}, fmt.Errorf(statusCheckErrorTemplateConstant, unstagedError)
	}

	hasStagedChanges, stagedError := service.repositoryManager.HasStagedChanges(executionContext, trimmedRepositoryPath, scopePaths)
	if stagedError != nil {
		return Result{}, fmt.Errorf(statusCheckErrorTemplateConstant, stagedError)
	}

	untrackedFiles, untrackedError := service.repositoryManager.ListUntrackedFiles(executionContext, trimmedRepositoryPath, scopePaths)
	if untrackedError != nil {
		return Result{}, fmt.Errorf(statusCheckErrorTemplateConstant, untrackedError)
	}

	if !hasUnstagedChanges && !hasStagedChanges && len(untrackedFiles) == 0 {
		return Result{RepositoryPath: trimmedRepositoryPath, Outcome: OutcomeClean}, nil
	}

	if options.DryRun {
		return Result{RepositoryPath: trimmedRepositoryPath, Outcome: OutcomeDryRun, UntrackedFiles: untrackedFiles}, nil
	}

	if stageError := service.repositoryManager.StageAll(executionContext, trimmedRepositoryPath, scopePaths); stageError != nil {
		return Result{}, stageError
	}

	commitMessage := service.buildCommitMessage()
	if commitError := service.repositoryManager.CreateCommit(executionContext, trimmedRepositoryPath, commitMessage); commitError != nil {
		return Result{}, commitError
	}

	if pushError := service.repositoryManager.Push(executionContext, trimmedRepositoryPath, trimmedRemoteName, trimmedBranchName); pushError != nil {
		return Result{}, pushError
	}

	return Result{
		RepositoryPath: trimmedRepositoryPath,
		Outcome:        OutcomeCommitted,
		CommitMessage:  commitMessage,
		UntrackedFiles: untrackedFiles,
	}, nil
}

func (service *Service) buildCommitMessage() string {
	return commitMessagePrefixConstant + service.clock.Now().Format(commitTimestampLayoutConstant)
}

func sanitizeScopePaths(candidatePaths []string) []string {
	sanitizedPaths := []string{}
	for _, candidatePath := range candidatePaths {
		trimmedPath := strings.TrimSpace(candidatePath)
		if len(trimmedPath) > 0 {
			sanitizedPaths = append(sanitizedPaths, trimmedPath)
		}
	}
	return sanitizedPaths
}
