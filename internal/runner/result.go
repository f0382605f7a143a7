package runner

import "time"

// Result holds the output of a command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // process exit code; -1 when killed by a signal
	Stdout    []byte        // captured stdout (may be truncated)
	Stderr    []byte        // captured stderr (may be truncated)
	Truncated bool          // true if output exceeded the size cap
	TimedOut  bool          // killed because Timeout elapsed
	Cancelled error         // non-nil if the caller's context ended first
	Duration  time.Duration // wall time from start to exit
}
