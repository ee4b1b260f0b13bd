package connector

import "fmt"

// CommandError carries the details of a remote command that exited non-zero
// or could not be started.
type CommandError struct {
	Cmd        string
	ExitCode   int
	Stdout     string
	Stderr     string
	Underlying error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", e.Cmd, e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s (underlying error: %v)", msg, e.Underlying)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Underlying }

// ConnectionError represents a failure to establish a connection to a host.
// The phase controller treats it as ConnectivityError for that node: the
// node is marked failed for the phase and the other nodes continue.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to host %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
