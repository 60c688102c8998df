package layers

import (
	"context"
	"fmt"

	"github.com/peick/docker-build/internal/errors"
)

type nativeStrategy struct{}

// NewNative references an existing image. Without a base the image is
// pulled unless present; with a base the layer is another name for the
// base's image. Native layers are never deleted.
func NewNative(d *Drivers, opts Options) (*Layer, error) {
	if opts.RepoTag == "" {
		return nil, errors.NewValidationError("create image "+opts.Name, "missing repotag for native image")
	}
	l, err := newLayer(d, opts)
	if err != nil {
		return nil, err
	}
	l.deletable = false
	return l.attach(nativeStrategy{}), nil
}

func (nativeStrategy) kind() Kind { return KindNative }

func (nativeStrategy) build(ctx context.Context, l *Layer) (string, error) {
	engine := l.drivers.Engine

	if l.base != nil {
		id := l.base.imageID
		if l.registry == nil {
			if err := engine.Tag(ctx, id, l.repoTag); err != nil {
				return "", err
			}
		}
		return id, nil
	}

	ref := l.FullRepoTag()
	id, ok, err := engine.InspectID(ctx, ref)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	l.logger.WithField("ref", ref).Info("Pulling image")
	if err := engine.Pull(ctx, ref); err != nil {
		return "", err
	}
	id, ok, err = engine.InspectID(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("image %s not present after pull", ref)
	}
	return id, nil
}
