package vagrant

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/peick/docker-build/executors"
)

const upOutput = `Bringing machine 'default' up with 'docker' provider...
==> default: Creating the container...
    default:   Name: test_build0_default_1426801518
    default:  Image: smerrill/vagrant-ubuntu
    default:   Port: 2222:22
    default:
    default: Container created: fbf460de4e94806c
==> default: Starting container...
`

const upOutputFailing = `A Vagrant environment or target machine is required to run this
command. Run ` + "`vagrant init`" + ` to create a new Vagrant environment.
`

type fakeRunner struct {
	stdout string
	err    error
	calls  []executors.Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd executors.Command) (*executors.Result, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return &executors.Result{Stdout: f.stdout}, nil
}

func TestUp(t *testing.T) {
	runner := &fakeRunner{stdout: upOutput}
	driver := NewDriver(runner, nil)

	id, err := driver.Up(context.Background(), "/work/vm")
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if id != "fbf460de4e94806c" {
		t.Errorf("Expected container id fbf460de4e94806c, got %s", id)
	}

	cmd := runner.calls[0]
	if cmd.Name != "vagrant" || !reflect.DeepEqual(cmd.Args, []string{"up"}) {
		t.Errorf("unexpected command %s", cmd)
	}
	if cmd.Dir != "/work/vm" {
		t.Errorf("Expected dir /work/vm, got %q", cmd.Dir)
	}
	if !reflect.DeepEqual(cmd.Env, []string{"VAGRANT_DEFAULT_PROVIDER=docker"}) {
		t.Errorf("Expected docker provider env, got %v", cmd.Env)
	}
}

func TestUpFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"no marker", &fakeRunner{stdout: upOutputFailing}},
		{"execution error", &fakeRunner{err: &executors.ExecutionError{Command: "vagrant up", Status: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDriver(tt.runner, nil).Up(context.Background(), "")
			var provErr *ProvisionError
			if !errors.As(err, &provErr) {
				t.Fatalf("Expected ProvisionError, got %v", err)
			}
			if provErr.Op != "up" {
				t.Errorf("Expected op up, got %s", provErr.Op)
			}
		})
	}
}

func TestUpKeepsExecutionErrorReachable(t *testing.T) {
	runner := &fakeRunner{err: &executors.ExecutionError{Command: "vagrant up", Status: 1}}
	_, err := NewDriver(runner, nil).Up(context.Background(), "")

	var execErr *executors.ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("Expected wrapped ExecutionError, got %v", err)
	}
}

func TestDestroy(t *testing.T) {
	runner := &fakeRunner{}
	if err := NewDriver(runner, nil).Destroy(context.Background(), "/work/vm"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	cmd := runner.calls[0]
	if !reflect.DeepEqual(cmd.Args, []string{"destroy", "-f"}) || cmd.Dir != "/work/vm" {
		t.Errorf("unexpected command %s in %q", cmd, cmd.Dir)
	}

	runner = &fakeRunner{err: errors.New("boom")}
	err := NewDriver(runner, nil).Destroy(context.Background(), "")
	var provErr *ProvisionError
	if !errors.As(err, &provErr) || provErr.Op != "destroy" {
		t.Errorf("Expected destroy ProvisionError, got %v", err)
	}
}
