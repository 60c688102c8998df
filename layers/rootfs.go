package layers

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/peick/docker-build/executors"
	"github.com/peick/docker-build/internal/errors"
)

// RootFS describes an image imported from a root filesystem archive.
type RootFS struct {
	// Archive is a tar file, optionally gzip, bzip2, xz or zstd compressed.
	Archive string
	// Pre runs before the import; a non-zero exit aborts the build.
	Pre []string
	// Post runs after the import attempt, whether it succeeded or not.
	Post []string
}

type rootfsStrategy struct {
	archive string
	pre     []string
	post    []string
}

// NewRootFS creates a layer imported from an archive. Without a pre hook the
// archive must already exist.
func NewRootFS(d *Drivers, opts Options, spec RootFS) (*Layer, error) {
	l, err := newLayer(d, opts)
	if err != nil {
		return nil, err
	}
	if spec.Archive == "" {
		return nil, errors.NewValidationError("create image "+l.repoTag, "missing rootfs archive")
	}
	if (len(spec.Pre) > 0 || len(spec.Post) > 0) && d.Runner == nil {
		return nil, errors.NewValidationError("create image "+l.repoTag, "rootfs hooks need a command runner")
	}

	s := &rootfsStrategy{
		archive: l.resolvePath(spec.Archive),
		pre:     spec.Pre,
		post:    spec.Post,
	}
	if len(s.pre) == 0 {
		if _, err := os.Stat(s.archive); err != nil {
			return nil, errors.NewNotFoundError("create image "+l.repoTag, s.archive)
		}
	}
	return l.attach(s), nil
}

func (s *rootfsStrategy) kind() Kind { return KindRootFS }

func (s *rootfsStrategy) build(ctx context.Context, l *Layer) (string, error) {
	if len(s.pre) > 0 {
		if err := s.runHook(ctx, l, "pre", s.pre); err != nil {
			return "", err
		}
	}
	if len(s.post) > 0 {
		defer func() {
			// the post hook cleans up after the import and must not be
			// skipped when the build was cancelled
			if err := s.runHook(context.WithoutCancel(ctx), l, "post", s.post); err != nil {
				l.logger.WithError(err).Warn("Post action failed")
			}
		}()
	}

	if _, err := os.Stat(s.archive); err != nil {
		return "", errors.NewNotFoundError("import "+l.repoTag, s.archive)
	}
	compression, err := InspectArchive(s.archive)
	if err != nil {
		return "", errors.NewErrorBuilder().
			Category(errors.ErrorCategoryValidation).
			Operation("import " + l.repoTag).
			Message("invalid rootfs archive").
			Cause(err).
			Build()
	}

	l.logger.WithFields(logrus.Fields{
		"archive":     s.archive,
		"compression": compression,
	}).Info("Importing root filesystem")
	return l.drivers.Engine.Import(ctx, s.archive)
}

func (s *rootfsStrategy) runHook(ctx context.Context, l *Layer, name string, argv []string) error {
	result, err := l.drivers.Runner.Run(ctx, executors.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Dir:     l.cwd,
		CanFail: true,
	})
	if err != nil {
		return errors.NewHookError(name, -1, err)
	}
	if result.Status != 0 {
		return errors.NewHookError(name, result.Status, nil)
	}
	return nil
}
