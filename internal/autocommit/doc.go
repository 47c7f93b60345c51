// Package autocommit implements the unattended stage, commit, and push cycle.
//
// Service.Sync inspects a repository's working tree; when uncommitted or
// untracked changes exist it stages everything, records a timestamped commit,
// and pushes the result to the configured remote branch.
package autocommit
