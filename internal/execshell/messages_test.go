package execshell_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vigiar/autosync/internal/execshell"
)

const testRepositoryPathConstant = "/tmp/repository"

func TestCommandMessageFormatterDescribesGitSubcommands(testInstance *testing.T) {
	formatter := execshell.CommandMessageFormatter{}

	testCases := []struct {
		name            string
		arguments       []string
		expectedMessage string
	}{
		{
			name:            "worktree_check",
			arguments:       []string{"rev-parse", "--is-inside-work-tree"},
			expectedMessage: "Analyzing repository at /tmp/repository",
		},
		{
			name:            "rev_parse_other_query",
			arguments:       []string{"rev-parse", "--abbrev-ref", "HEAD"},
			expectedMessage: "Running git rev-parse --abbrev-ref HEAD (in /tmp/repository)",
		},
		{
			name:            "unstaged_check",
			arguments:       []string{"diff", "--quiet"},
			expectedMessage: "Checking for unstaged changes in /tmp/repository",
		},
		{
			name:            "staged_check",
			arguments:       []string{"diff", "--cached", "--quiet"},
			expectedMessage: "Checking for staged changes in /tmp/repository",
		},
		{
			name:            "untracked_scan",
			arguments:       []string{"ls-files", "--others", "--exclude-standard"},
			expectedMessage: "Scanning for untracked files in /tmp/repository",
		},
		{
			name:            "stage_all",
			arguments:       []string{"add", "--all"},
			expectedMessage: "Staging all changes in /tmp/repository",
		},
		{
			name:            "commit",
			arguments:       []string{"commit", "-m", "Auto-commit on 2024-05-01 10:15:00"},
			expectedMessage: "Creating commit in /tmp/repository with message \"Auto-commit on 2024-05-01 10:15:00\"",
		},
		{
			name:            "push",
			arguments:       []string{"push", "origin", "main"},
			expectedMessage: "Pushing main to origin from /tmp/repository",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			command := execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments:        testCase.arguments,
					WorkingDirectory: testRepositoryPathConstant,
				},
			}
			require.Equal(testInstance, testCase.expectedMessage, formatter.BuildStartedMessage(command))
		})
	}
}
