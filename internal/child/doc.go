// Package child launches the observed command as the leader of its own
// process group and owns its termination.
//
// Full process-group termination is only guaranteed on Linux, where job
// control delivers signals to every member of the child's group, including
// workers forked by test runners. On macOS the same code paths apply with
// best-effort coverage of grandchildren. On Windows signals reach only the
// direct child; descendants may survive a kill and are reported through the
// survivor census where the platform allows it.
package child
