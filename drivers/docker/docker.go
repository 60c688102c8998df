// Package docker drives a docker compatible container engine through its
// command line interface.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/peick/docker-build/executors"
	"github.com/sirupsen/logrus"
)

const (
	BinaryDocker = "docker"
	BinaryPodman = "podman"

	idFormat = "{{.Id}}"
)

var builtPattern = regexp.MustCompile(`Successfully built ([0-9a-fA-F]{12,})`)

// Driver runs engine commands through a process runner.
type Driver struct {
	runner executors.Runner
	binary string
	logger logrus.FieldLogger

	// MaxRemoveAttempts bounds the rmi loop of RemoveImage; 0 means unlimited.
	MaxRemoveAttempts int
}

// NewDriver creates a driver for binary (docker or podman). An empty binary
// selects docker.
func NewDriver(runner executors.Runner, binary string, logger logrus.FieldLogger) *Driver {
	if binary == "" {
		binary = BinaryDocker
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{
		runner: runner,
		binary: binary,
		logger: logger.WithField("engine", binary),
	}
}

// Binary returns the engine executable name.
func (d *Driver) Binary() string {
	return d.binary
}

func (d *Driver) run(ctx context.Context, args ...string) (*executors.Result, error) {
	return d.runner.Run(ctx, executors.Command{Name: d.binary, Args: args})
}

func (d *Driver) runCanFail(ctx context.Context, args ...string) (*executors.Result, error) {
	return d.runner.Run(ctx, executors.Command{Name: d.binary, Args: args, CanFail: true})
}

// Build runs `build --rm -t repoTag .` in dir and returns the new image id.
func (d *Driver) Build(ctx context.Context, repoTag, dir string) (string, error) {
	result, err := d.runner.Run(ctx, executors.Command{
		Name: d.binary,
		Args: []string{"build", "--rm", "-t", repoTag, "."},
		Dir:  dir,
	})
	if err != nil {
		return "", err
	}

	if matches := builtPattern.FindAllStringSubmatch(result.Output(), -1); len(matches) > 0 {
		return matches[len(matches)-1][1], nil
	}

	// BuildKit does not print the legacy marker
	id, ok, err := d.InspectID(ctx, repoTag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("image id of %s not found in build output", repoTag)
	}
	return id, nil
}

// Commit creates an image from a container, optionally tagged as repoTag.
func (d *Driver) Commit(ctx context.Context, containerID, repoTag string) (string, error) {
	args := []string{"commit", "-p", containerID}
	if repoTag != "" {
		args = append(args, repoTag)
	}
	result, err := d.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Import creates an image from a root filesystem archive streamed on stdin.
func (d *Driver) Import(ctx context.Context, archive string) (string, error) {
	result, err := d.runner.Run(ctx, executors.Command{
		Name:      d.binary,
		Args:      []string{"import", "-"},
		StdinFile: archive,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Inspect returns the decoded inspect document of a container or image. The
// bool is false when the engine does not know name.
func (d *Driver) Inspect(ctx context.Context, name string) (map[string]interface{}, bool, error) {
	result, err := d.runCanFail(ctx, "inspect", name)
	if err != nil {
		return nil, false, err
	}
	if result.Status != 0 {
		return nil, false, nil
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal([]byte(result.Stdout), &docs); err != nil {
		return nil, false, fmt.Errorf("failed to decode inspect output of %s: %w", name, err)
	}
	if len(docs) != 1 {
		return nil, false, fmt.Errorf("expected one inspect document for %s, got %d", name, len(docs))
	}
	return docs[0], true, nil
}

// InspectFormat returns inspect output rendered with a Go template.
func (d *Driver) InspectFormat(ctx context.Context, name, format string) (string, bool, error) {
	result, err := d.runCanFail(ctx, "inspect", "-f", format, name)
	if err != nil {
		return "", false, err
	}
	if result.Status != 0 {
		return "", false, nil
	}
	return result.Stdout, true, nil
}

// InspectID resolves name to an image or container id.
func (d *Driver) InspectID(ctx context.Context, name string) (string, bool, error) {
	out, ok, err := d.InspectFormat(ctx, name, idFormat)
	if err != nil || !ok {
		return "", ok, err
	}
	return strings.TrimSpace(out), true, nil
}

// Login authenticates against a registry. The password is passed on stdin.
func (d *Driver) Login(ctx context.Context, registryURL, username, password string) error {
	_, err := d.runner.Run(ctx, executors.Command{
		Name:  d.binary,
		Args:  []string{"login", "-u", username, "--password-stdin", registryURL},
		Stdin: strings.NewReader(password),
	})
	return err
}

func (d *Driver) Logout(ctx context.Context, registryURL string) error {
	_, err := d.run(ctx, "logout", registryURL)
	return err
}

func (d *Driver) Pull(ctx context.Context, repoTag string) error {
	_, err := d.run(ctx, "pull", repoTag)
	return err
}

func (d *Driver) Push(ctx context.Context, repoTag string) error {
	if repoTag == "" {
		return fmt.Errorf("push requires a repository tag")
	}
	_, err := d.run(ctx, "push", repoTag)
	return err
}

func (d *Driver) Tag(ctx context.Context, image, repoTag string) error {
	if image == "" || repoTag == "" {
		return fmt.Errorf("tag requires an image and a repository tag")
	}
	_, err := d.run(ctx, "tag", image, repoTag)
	return err
}

// Remove force-removes a container and returns the exit status.
func (d *Driver) Remove(ctx context.Context, containerID string) (int, error) {
	result, err := d.runCanFail(ctx, "rm", containerID, "-f")
	if err != nil {
		return 0, err
	}
	return result.Status, nil
}

// RemoveImage force-removes repoTag. Each successful `rmi -f` drops one more
// reference, so the command is repeated until it fails, which means the image
// is gone. The final non-zero status is returned.
func (d *Driver) RemoveImage(ctx context.Context, repoTag string) (int, error) {
	for attempt := 1; ; attempt++ {
		result, err := d.runCanFail(ctx, "rmi", "-f", repoTag)
		if err != nil {
			return 0, err
		}
		if result.Status != 0 {
			return result.Status, nil
		}

		d.logger.WithFields(logrus.Fields{
			"image":   repoTag,
			"attempt": attempt,
		}).Debugf(">> %s", strings.TrimSpace(result.Output()))

		if d.MaxRemoveAttempts > 0 && attempt >= d.MaxRemoveAttempts {
			return 0, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}
