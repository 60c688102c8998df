package layers

import (
	"context"

	"github.com/peick/docker-build/internal/errors"
)

type vagrantStrategy struct {
	file buildfile
}

// NewVagrant creates a layer committed from a container provisioned by
// vagrant's docker provider. path is a directory containing a Vagrantfile
// or a file of any name.
func NewVagrant(d *Drivers, opts Options, path string) (*Layer, error) {
	l, err := newLayer(d, opts)
	if err != nil {
		return nil, err
	}
	if d.Provisioner == nil {
		return nil, errors.NewValidationError("create image "+l.repoTag, "no vagrant provisioner configured")
	}
	file, err := locateBuildfile(l, path, vagrantfileName)
	if err != nil {
		return nil, err
	}
	return l.attach(&vagrantStrategy{file: file}), nil
}

func (s *vagrantStrategy) kind() Kind { return KindVagrant }

func (s *vagrantStrategy) build(ctx context.Context, l *Layer) (string, error) {
	var id string
	err := s.file.inDir(func(dir string) (err error) {
		containerID, err := l.drivers.Provisioner.Up(ctx, dir)
		if err != nil {
			return err
		}
		defer func() {
			destroyErr := l.drivers.Provisioner.Destroy(context.WithoutCancel(ctx), dir)
			if destroyErr == nil {
				return
			}
			if err == nil {
				err = destroyErr
			} else {
				l.logger.WithError(destroyErr).Warn("Failed to destroy vagrant machine")
			}
		}()

		id, err = l.drivers.Engine.Commit(ctx, containerID, l.repoTag)
		return err
	})
	return id, err
}
