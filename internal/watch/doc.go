// Package watch runs the auto-commit cycle continuously.
//
// The Service repeats autocommit synchronization on a fixed interval and,
// when filesystem events are enabled, additionally after a debounced burst
// of changes inside the repository. A process lock keeps a repository from
// being serviced by more than one watcher at a time.
package watch
