package connector

import (
	"io"
	"time"
)

// ExecOptions tunes a single command execution.
type ExecOptions struct {
	// Sudo runs the command through sudo, feeding the connection password
	// on stdin when one is configured.
	Sudo bool
	// Timeout bounds the command; zero means no per-command timeout beyond
	// the caller's context.
	Timeout time.Duration
	// Stream, when set, receives combined remote output as it arrives, in
	// addition to the captured buffers. Used at high verbosity.
	Stream io.Writer
	// Stdin is written to the remote process.
	Stdin []byte
}
