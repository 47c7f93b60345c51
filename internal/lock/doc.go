// Package lock provides a file-based single-instance guard for watch mode.
//
// ProcessLock serializes autosync daemons per repository path using an
// exclusive flock on a PID file under the system temporary directory, and
// reclaims locks left behind by processes that are no longer running.
package lock
