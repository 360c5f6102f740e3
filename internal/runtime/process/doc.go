// Package process provides a runtime that launches instrumentation children as
// local processes.
//
// On unix every child runs in its own process group and Kill delivers SIGKILL to
// the whole group, so helpers the instrumentation tool forks are reaped with it.
// On Windows only the direct child is terminated; grandchildren may survive and
// must be cleaned up separately.
package process
