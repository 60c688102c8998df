package executors

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// LocalRunner runs commands as child processes of the current process.
type LocalRunner struct {
	logger logrus.FieldLogger
}

// NewLocalRunner creates a runner logging through logger. A nil logger uses
// the logrus standard logger.
func NewLocalRunner(logger logrus.FieldLogger) *LocalRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LocalRunner{logger: logger}
}

func (r *LocalRunner) Run(ctx context.Context, command Command) (*Result, error) {
	log := r.logger.WithFields(logrus.Fields{
		"command": command.String(),
		"dir":     command.Dir,
	})
	log.Debug("Running command")

	stdin := command.Stdin
	if command.StdinFile != "" {
		f, err := os.Open(command.StdinFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin file for %s: %w", command.Name, err)
		}
		defer f.Close()
		stdin = f
	}

	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	var stdinPipe io.WriteCloser
	if stdin != nil {
		if stdinPipe, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command.Name, err)
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, &outBuf, stdout)
	go drain(&wg, &errBuf, stderr)

	if stdinPipe != nil {
		if _, err := io.Copy(stdinPipe, stdin); err != nil && !stderrors.Is(err, syscall.EPIPE) {
			log.WithError(err).Debug("Failed to write stdin")
		}
		stdinPipe.Close()
	}

	// pipes must be fully read before Wait closes them
	wg.Wait()
	waitErr := cmd.Wait()

	result := &Result{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}

	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command %s interrupted: %w", command.Name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if !stderrors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed to wait for %s: %w", command.Name, waitErr)
		}
		result.Status = exitErr.ExitCode()
	}

	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Command finished")

	if result.Status != 0 && !command.CanFail {
		return result, &ExecutionError{
			Command: command.String(),
			Status:  result.Status,
			Output:  result.Output(),
		}
	}
	return result, nil
}

func drain(wg *sync.WaitGroup, dst *bytes.Buffer, src io.Reader) {
	defer wg.Done()
	io.Copy(dst, src)
}
