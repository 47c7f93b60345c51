package lock

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	signalProbeNilCaseNameConstant         = "no_error_running"
	signalProbePermissionCaseNameConstant  = "permission_denied_running"
	signalProbeNoProcessCaseNameConstant   = "no_such_process_dead"
	signalProbeProcessDoneCaseNameConstant = "process_done_dead"
)

func TestSignalProbeIndicatesRunning(testInstance *testing.T) {
	testCases := []struct {
		name          string
		signalError   error
		expectRunning bool
	}{
		{
			name:          signalProbeNilCaseNameConstant,
			signalError:   nil,
			expectRunning: true,
		},
		{
			name:          signalProbePermissionCaseNameConstant,
			signalError:   syscall.EPERM,
			expectRunning: true,
		},
		{
			name:          signalProbeNoProcessCaseNameConstant,
			signalError:   syscall.ESRCH,
			expectRunning: false,
		},
		{
			name:          signalProbeProcessDoneCaseNameConstant,
			signalError:   os.ErrProcessDone,
			expectRunning: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectRunning, signalProbeIndicatesRunning(testCase.signalError))
		})
	}
}

func TestIsProcessRunningDetectsOwnProcess(testInstance *testing.T) {
	require.True(testInstance, isProcessRunning(os.Getpid()))
}
