package lock

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	lockFileNameTemplateConstant          = "autosync-%s.lock"
	repositoryHashLengthConstant          = 16
	lockFilePermissionsConstant           = 0o644
	alreadyLockedMessageConstant          = "another autosync instance holds the lock"
	alreadyLockedErrorTemplateConstant    = "%w (pid %d)"
	lockFileCreateErrorTemplateConstant   = "failed to create lock file %s: %w"
	lockFileOpenErrorTemplateConstant     = "failed to open lock file %s: %w"
	lockFilePidWriteErrorTemplateConstant = "failed to record pid in lock file %s: %w"
	lockFilePidReadErrorTemplateConstant  = "failed to read pid from lock file %s: %w"
	staleLockRemoveErrorTemplateConstant  = "failed to remove stale lock file %s: %w"
	lockReleaseErrorTemplateConstant      = "failed to release lock file %s: %w"
)

// ErrAlreadyLocked indicates another live process holds the repository lock.
var ErrAlreadyLocked = errors.New(alreadyLockedMessageConstant)

// ProcessLock guards a repository against concurrent autosync instances.
type ProcessLock struct {
	lockFilePath   string
	lockFileHandle *os.File
	processID      int
}

// NewProcessLock derives a lock for the supplied repository path.
func NewProcessLock(repositoryPath string) *ProcessLock {
	repositoryHash := fmt.Sprintf("%x", sha256.Sum256([]byte(repositoryPath)))[:repositoryHashLengthConstant]
	return &ProcessLock{
		lockFilePath: filepath.Join(os.TempDir(), fmt.Sprintf(lockFileNameTemplateConstant, repositoryHash)),
		processID:    os.Getpid(),
	}
}

// LockFilePath exposes the backing lock file location.
func (processLock *ProcessLock) LockFilePath() string {
	return processLock.lockFilePath
}

// Acquire takes the lock, reclaiming it when a previous holder has exited.
func (processLock *ProcessLock) Acquire() error {
	creationError := processLock.createAndLock()
	if creationError == nil {
		return nil
	}
	if os.IsExist(creationError) {
		return processLock.acquireExisting()
	}
	return creationError
}

// Release unlocks and removes the lock file.
func (processLock *ProcessLock) Release() error {
	if processLock.lockFileHandle == nil {
		return nil
	}

	var releaseError error
	if unlockError := syscall.Flock(int(processLock.lockFileHandle.Fd()), syscall.LOCK_UN); unlockError != nil {
		releaseError = fmt.Errorf(lockReleaseErrorTemplateConstant, processLock.lockFilePath, unlockError)
	}

	if closeError := processLock.lockFileHandle.Close(); closeError != nil && releaseError == nil {
		releaseError = fmt.Errorf(lockReleaseErrorTemplateConstant, processLock.lockFilePath, closeError)
	}
	processLock.lockFileHandle = nil

	if removeError := os.Remove(processLock.lockFilePath); removeError != nil && !os.IsNotExist(removeError) && releaseError == nil {
		releaseError = fmt.Errorf(lockReleaseErrorTemplateConstant, processLock.lockFilePath, removeError)
	}

	return releaseError
}

func (processLock *ProcessLock) createAndLock() error {
	lockFileHandle, openError := os.OpenFile(processLock.lockFilePath, os.O_CREATE|os.O_EXCL|os.O_RDWR, lockFilePermissionsConstant)
	if openError != nil {
		if os.IsExist(openError) {
			return openError
		}
		return fmt.Errorf(lockFileCreateErrorTemplateConstant, processLock.lockFilePath, openError)
	}

	processLock.lockFileHandle = lockFileHandle
	if flockError := processLock.acquireFlock(); flockError != nil {
		processLock.closeHandle()
		return fmt.Errorf(lockFileCreateErrorTemplateConstant, processLock.lockFilePath, flockError)
	}

	return processLock.writeProcessID()
}

func (processLock *ProcessLock) acquireExisting() error {
	lockFileHandle, openError := os.OpenFile(processLock.lockFilePath, os.O_RDWR, lockFilePermissionsConstant)
	if openError != nil {
		if os.IsNotExist(openError) {
			return processLock.createAndLock()
		}
		return fmt.Errorf(lockFileOpenErrorTemplateConstant, processLock.lockFilePath, openError)
	}

	processLock.lockFileHandle = lockFileHandle
	flockError := processLock.acquireFlock()
	if flockError == nil {
		return processLock.resetAndWriteProcessID()
	}

	processLock.closeHandle()

	// Older unixes report EAGAIN where others report EWOULDBLOCK; treat both as held.
	if errors.Is(flockError, syscall.EWOULDBLOCK) || errors.Is(flockError, syscall.EAGAIN) {
		return processLock.handleHeldLock()
	}

	return fmt.Errorf(lockFileOpenErrorTemplateConstant, processLock.lockFilePath, flockError)
}

func (processLock *ProcessLock) handleHeldLock() error {
	holderProcessID, readError := processLock.readHolderProcessID()
	if readError != nil {
		return readError
	}

	if isProcessRunning(holderProcessID) {
		return fmt.Errorf(alreadyLockedErrorTemplateConstant, ErrAlreadyLocked, holderProcessID)
	}

	if removeError := os.Remove(processLock.lockFilePath); removeError != nil && !os.IsNotExist(removeError) {
		return fmt.Errorf(staleLockRemoveErrorTemplateConstant, processLock.lockFilePath, removeError)
	}

	return processLock.createAndLock()
}

func (processLock *ProcessLock) acquireFlock() error {
	return syscall.Flock(int(processLock.lockFileHandle.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (processLock *ProcessLock) writeProcessID() error {
	if _, writeError := processLock.lockFileHandle.WriteAt([]byte(strconv.Itoa(processLock.processID)), 0); writeError != nil {
		releaseError := processLock.Release()
		if releaseError != nil {
			return fmt.Errorf(lockFilePidWriteErrorTemplateConstant, processLock.lockFilePath, errors.Join(writeError, releaseError))
		}
		return fmt.Errorf(lockFilePidWriteErrorTemplateConstant, processLock.lockFilePath, writeError)
	}
	return nil
}

func (processLock *ProcessLock) resetAndWriteProcessID() error {
	if truncateError := processLock.lockFileHandle.Truncate(0); truncateError != nil {
		return fmt.Errorf(lockFilePidWriteErrorTemplateConstant, processLock.lockFilePath, truncateError)
	}
	return processLock.writeProcessID()
}

func (processLock *ProcessLock) readHolderProcessID() (int, error) {
	lockFileContent, readError := os.ReadFile(processLock.lockFilePath)
	if readError != nil {
		return 0, fmt.Errorf(lockFilePidReadErrorTemplateConstant, processLock.lockFilePath, readError)
	}

	holderProcessID, parseError := strconv.Atoi(strings.TrimSpace(string(lockFileContent)))
	if parseError != nil {
		return 0, fmt.Errorf(lockFilePidReadErrorTemplateConstant, processLock.lockFilePath, parseError)
	}
	return holderProcessID, nil
}

func (processLock *ProcessLock) closeHandle() {
	if processLock.lockFileHandle != nil {
		_ = processLock.lockFileHandle.Close()
		processLock.lockFileHandle = nil
	}
}

// isProcessRunning probes the pid with signal zero.
func isProcessRunning(processID int) bool {
	foundProcess, findError := os.FindProcess(processID)
	if findError != nil {
		return false
	}
	return signalProbeIndicatesRunning(foundProcess.Signal(syscall.Signal(0)))
}

// signalProbeIndicatesRunning interprets the outcome of a signal-zero probe.
// EPERM means the process exists but belongs to another user, so the holder
// is alive and its lock must not be reclaimed.
func signalProbeIndicatesRunning(signalError error) bool {
	if signalError == nil {
		return true
	}
	return errors.Is(signalError, syscall.EPERM)
}
