// Package runner launches an external command, captures its standard output
// and standard error concurrently, and optionally echoes each line as it
// arrives.
//
// One goroutine drains each output pipe so a child that floods one stream
// cannot block on the other. A third goroutine waits for process exit. A run
// is complete only once the process has exited and both pipes have reached
// end of stream; pipe closure, not exit, is what guarantees no late output is
// lost.
//
// Echoed lines may be truncated to a display limit. Captured text is never
// truncated.
//
// Runs are not cancellable once spawned. Block(false) only changes when the
// caller observes completion; the child always runs to its natural exit.
//
// A command that cannot be spawned does not produce an error return. The
// Result carries a sentinel return code (127 not found, 126 permission
// denied, 1 otherwise), a FAIL line in its captured stdout and the cause via
// SpawnErr.
package runner
