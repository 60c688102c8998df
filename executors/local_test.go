package executors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestRunner() *LocalRunner {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewLocalRunner(logger)
}

func sh(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestLocalRunner_CapturesBothStreams(t *testing.T) {
	result, err := newTestRunner().Run(context.Background(), sh("echo out; echo err >&2"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != 0 {
		t.Errorf("Expected status 0, got %d", result.Status)
	}
	if result.Stdout != "out\n" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
	if result.Output() != "out\nerr\n" {
		t.Errorf("Output() = %q", result.Output())
	}
}

func TestLocalRunner_NonZeroStatus(t *testing.T) {
	result, err := newTestRunner().Run(context.Background(), sh("echo boom; exit 3"))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Expected ExecutionError, got %v", err)
	}
	if execErr.Status != 3 {
		t.Errorf("Expected status 3, got %d", execErr.Status)
	}
	if !strings.Contains(execErr.Output, "boom") {
		t.Errorf("Expected captured output in error, got %q", execErr.Output)
	}
	if !strings.Contains(execErr.Error(), "exitcode: 3") {
		t.Errorf("unexpected message %q", execErr.Error())
	}
	if result == nil || result.Status != 3 {
		t.Errorf("Expected result with status 3 alongside the error, got %+v", result)
	}
}

func TestLocalRunner_CanFail(t *testing.T) {
	cmd := sh("exit 5")
	cmd.CanFail = true

	result, err := newTestRunner().Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Expected no error with CanFail, got %v", err)
	}
	if result.Status != 5 {
		t.Errorf("Expected status 5, got %d", result.Status)
	}
}

func TestLocalRunner_MissingBinary(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Command{Name: "docker-build-no-such-binary"})
	if err == nil {
		t.Fatal("Expected error for missing binary")
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Errorf("start failure must not be an ExecutionError")
	}
}

func TestLocalRunner_LargeOutputDoesNotDeadlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1 MiB on each stream, far beyond a pipe buffer
	script := "head -c 1048576 /dev/zero; head -c 1048576 /dev/zero >&2"
	result, err := newTestRunner().Run(ctx, sh(script))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Stdout) != 1<<20 || len(result.Stderr) != 1<<20 {
		t.Errorf("Expected 1MiB per stream, got %d and %d", len(result.Stdout), len(result.Stderr))
	}
}

func TestLocalRunner_Stdin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// cat echoes stdin while it is being written
	input := strings.Repeat("x", 1<<20)
	cmd := Command{Name: "cat", Stdin: strings.NewReader(input)}

	result, err := newTestRunner().Run(ctx, cmd)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stdout != input {
		t.Errorf("Expected stdin echoed back, got %d bytes", len(result.Stdout))
	}
}

func TestLocalRunner_StdinFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootfs.tar")
	if err := os.WriteFile(path, []byte("archive"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := newTestRunner().Run(context.Background(), Command{Name: "cat", StdinFile: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stdout != "archive" {
		t.Errorf("Stdout = %q", result.Stdout)
	}

	_, err = newTestRunner().Run(context.Background(), Command{Name: "cat", StdinFile: path + ".missing"})
	if err == nil {
		t.Error("Expected error for missing stdin file")
	}
}

func TestLocalRunner_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	cmd := sh(`pwd; echo "$DOCKER_BUILD_TEST"`)
	cmd.Dir = dir
	cmd.Env = []string{"DOCKER_BUILD_TEST=hello"}

	result, err := newTestRunner().Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", result.Stdout)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if lines[0] != dir && lines[0] != resolved {
		t.Errorf("Expected working directory %s, got %s", dir, lines[0])
	}
	if lines[1] != "hello" {
		t.Errorf("Expected env value hello, got %s", lines[1])
	}
}

func TestLocalRunner_Cancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestRunner().Run(ctx, sh("exec sleep 10"))
	if err == nil {
		t.Fatal("Expected error for cancelled command")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancelled command took %s", time.Since(start))
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "docker", Args: []string{"build", "--rm", "-t", "test/base", "."}}
	if cmd.String() != "docker build --rm -t test/base ." {
		t.Errorf("String() = %q", cmd.String())
	}

	cmd = Command{Name: "sh", Args: []string{"-c", "echo hi"}}
	if cmd.String() != `sh -c "echo hi"` {
		t.Errorf("String() = %q", cmd.String())
	}
}
