package execshell

// CommandEventObserver receives lifecycle notifications for every git
// invocation the executor performs. Observers run synchronously on the
// executing goroutine and must not block.
type CommandEventObserver interface {
	// CommandStarted fires before the command process is launched.
	CommandStarted(command ShellCommand)
	// CommandCompleted fires once the command process exits, regardless of exit code.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed fires when the command could not be launched at all.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// noopCommandEventObserver is the default observer; it discards every event.
type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}
