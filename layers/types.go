package layers

import (
	"context"

	"github.com/peick/docker-build/executors"
	"github.com/peick/docker-build/registry"
	"github.com/sirupsen/logrus"
)

// Kind names the build strategy of a layer.
type Kind string

const (
	KindDockerfile Kind = "dockerfile"
	KindFields     Kind = "fields"
	KindNative     Kind = "native"
	KindRootFS     Kind = "rootfs"
	KindVagrant    Kind = "vagrant"
)

// Engine is the container engine surface layers build with.
type Engine interface {
	Build(ctx context.Context, repoTag, dir string) (string, error)
	Commit(ctx context.Context, containerID, repoTag string) (string, error)
	Import(ctx context.Context, archive string) (string, error)
	InspectID(ctx context.Context, name string) (string, bool, error)
	Pull(ctx context.Context, repoTag string) error
	Tag(ctx context.Context, image, repoTag string) error
	RemoveImage(ctx context.Context, repoTag string) (int, error)
}

// Provisioner starts and tears down the VM behind a vagrant layer.
type Provisioner interface {
	Up(ctx context.Context, dir string) (string, error)
	Destroy(ctx context.Context, dir string) error
}

// Registry is the upload target of a named layer.
type Registry interface {
	Name() string
	RepoTagURL(repoTag string) string
	Session(ctx context.Context) (func() error, error)
	DeleteTag(ctx context.Context, repoTag string) error
	Post(ctx context.Context, imageID, repoTag string) error
	Info(ctx context.Context, repoTag string) (*registry.TagInfo, error)
}

// Drivers are the collaborators shared by all layers of a run.
type Drivers struct {
	Engine      Engine
	Provisioner Provisioner
	// Runner executes rootfs pre and post hooks.
	Runner executors.Runner
	Logger logrus.FieldLogger
}

func (d *Drivers) logger() logrus.FieldLogger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}

// Options are the settings common to every layer variant.
type Options struct {
	// Name is the declaration name, used for lookups and diagnostics.
	Name string
	// RepoTag makes the layer named. Empty means temporary.
	RepoTag string
	// TempRepoTag renders the repo tag of a temporary layer. Nil uses
	// DefaultTempRepoTag.
	TempRepoTag func(NameTokens) (string, error)
	Base        *Layer
	Registry    Registry
	// Cwd is the directory relative paths resolve against and builds run
	// in. Empty means the current working directory.
	Cwd string
}
