// Package gitrepo exposes repository-level git operations built on execshell.
//
// RepositoryManager answers the three working-tree status questions autosync
// cares about (unstaged, staged, untracked) and performs the stage, commit,
// and push mutations, always against an explicit repository path.
package gitrepo
