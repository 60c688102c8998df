package executors

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Runner runs one external command synchronously.
type Runner interface {
	Run(ctx context.Context, command Command) (*Result, error)
}

// Command describes an external command invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env entries (KEY=VALUE) are added to the inherited environment.
	Env []string
	// Stdin is written to the process after both output readers started.
	Stdin io.Reader
	// StdinFile names a file streamed to the process instead of Stdin.
	StdinFile string
	// CanFail suppresses the ExecutionError for a non-zero exit status.
	CanFail bool
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Status int
	Stdout string
	Stderr string
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" || strings.HasSuffix(r.Stdout, "\n") {
		return r.Stdout + r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecutionError is returned when a command exits with a non-zero status and
// the caller did not allow it to fail.
type ExecutionError struct {
	Command string
	Status  int
	Output  string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("command `%s` failed (exitcode: %d)", e.Command, e.Status)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}
