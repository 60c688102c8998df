// Package vagrant provisions throwaway containers with vagrant's docker
// provider.
package vagrant

import (
	"context"
	"fmt"
	"regexp"

	"github.com/peick/docker-build/executors"
	"github.com/sirupsen/logrus"
)

const (
	binary      = "vagrant"
	providerEnv = "VAGRANT_DEFAULT_PROVIDER=docker"
)

var containerCreated = regexp.MustCompile(`Container created: (\S+)`)

// ProvisionError reports a vagrant failure, including output that lacks the
// expected markers.
type ProvisionError struct {
	Op    string
	Dir   string
	Cause error
}

func (e *ProvisionError) Error() string {
	msg := "vagrant " + e.Op
	if e.Dir != "" {
		msg += " in " + e.Dir
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

type Driver struct {
	runner executors.Runner
	logger logrus.FieldLogger
}

func NewDriver(runner executors.Runner, logger logrus.FieldLogger) *Driver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{runner: runner, logger: logger}
}

func (d *Driver) run(ctx context.Context, dir string, args ...string) (*executors.Result, error) {
	return d.runner.Run(ctx, executors.Command{
		Name: binary,
		Args: args,
		Dir:  dir,
		Env:  []string{providerEnv},
	})
}

// Up starts the machine described by the Vagrantfile in dir and returns the
// id of the container it created.
func (d *Driver) Up(ctx context.Context, dir string) (string, error) {
	result, err := d.run(ctx, dir, "up")
	if err != nil {
		return "", &ProvisionError{Op: "up", Dir: dir, Cause: err}
	}

	match := containerCreated.FindStringSubmatch(result.Output())
	if match == nil {
		return "", &ProvisionError{Op: "up", Dir: dir, Cause: fmt.Errorf("container id not found in output")}
	}

	d.logger.WithFields(logrus.Fields{
		"dir":       dir,
		"container": match[1],
	}).Debug("Vagrant container created")
	return match[1], nil
}

// Destroy force-destroys the machine in dir.
func (d *Driver) Destroy(ctx context.Context, dir string) error {
	if _, err := d.run(ctx, dir, "destroy", "-f"); err != nil {
		return &ProvisionError{Op: "destroy", Dir: dir, Cause: err}
	}
	return nil
}
