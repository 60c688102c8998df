package layers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/peick/docker-build/internal/errors"
	"github.com/peick/docker-build/internal/scope"
)

// strategy is the variant specific part of a build.
type strategy interface {
	kind() Kind
	// build runs inside the layer's working directory after the base was
	// built and returns the new image id.
	build(ctx context.Context, l *Layer) (string, error)
}

// Layer is one image of the build description. The base is built before the
// layer itself; a layer is built at most once per run.
type Layer struct {
	name      string
	repoTag   string
	temporary bool
	deletable bool
	cwd       string

	base     *Layer
	children []*Layer
	registry Registry

	imageID string
	built   bool

	strategy strategy
	drivers  *Drivers
	logger   logrus.FieldLogger
}

// newLayer validates the common options. The variant constructor installs
// the strategy and calls attach once its own checks passed, so a failed
// construction never shows up among the base's children.
func newLayer(d *Drivers, opts Options) (*Layer, error) {
	if d == nil || d.Engine == nil {
		return nil, fmt.Errorf("layer %s: no container engine configured", opts.Name)
	}

	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewFilesystemError("create image", "failed to get working directory", err)
		}
		cwd = wd
	}
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, errors.NewFilesystemError("create image", "failed to resolve directory", err)
	}

	l := &Layer{
		name:      opts.Name,
		repoTag:   opts.RepoTag,
		deletable: true,
		cwd:       cwd,
		base:      opts.Base,
		registry:  opts.Registry,
		drivers:   d,
	}

	if l.repoTag == "" {
		l.temporary = true
		render := opts.TempRepoTag
		if render == nil {
			render = DefaultTempRepoTag
		}
		tokens, err := NewNameTokens()
		if err != nil {
			return nil, err
		}
		if l.repoTag, err = render(tokens); err != nil {
			return nil, errors.NewErrorBuilder().
				Category(errors.ErrorCategoryValidation).
				Operation("create image").
				Resource(opts.Name).
				Message("failed to render temporary repo tag").
				Cause(err).
				Build()
		}
	}

	if !ValidRepoTag(l.repoTag) {
		return nil, errors.NewErrorBuilder().
			Category(errors.ErrorCategoryValidation).
			Operation("create image").
			Message("invalid repository/tag name").
			Resource(l.repoTag).
			Suggestion("Use [user/]repo[:tag] with lowercase letters, digits, '_', '.' and '-'").
			Build()
	}

	l.logger = d.logger().WithField("image", l.repoTag)
	return l, nil
}

func (l *Layer) attach(s strategy) *Layer {
	l.strategy = s
	if l.base != nil {
		l.base.children = append(l.base.children, l)
	}
	return l
}

func (l *Layer) Name() string { return l.name }

func (l *Layer) RepoTag() string { return l.repoTag }

// FullRepoTag qualifies the repo tag of a named layer with its registry.
func (l *Layer) FullRepoTag() string {
	if l.registry != nil && !l.temporary {
		return l.registry.RepoTagURL(l.repoTag)
	}
	return l.repoTag
}

func (l *Layer) Kind() Kind { return l.strategy.kind() }

func (l *Layer) IsTemporary() bool { return l.temporary }

func (l *Layer) IsRoot() bool { return l.base == nil }

func (l *Layer) Base() *Layer { return l.base }

// Children returns the layers built on top of this one in registration order.
func (l *Layer) Children() []*Layer { return l.children }

func (l *Layer) Registry() Registry { return l.registry }

func (l *Layer) Deletable() bool { return l.deletable }

func (l *Layer) Cwd() string { return l.cwd }

// ImageID is empty until the layer was built.
func (l *Layer) ImageID() string { return l.imageID }

func (l *Layer) Built() bool { return l.built }

// Build builds the base chain and then the layer itself. Repeated calls after
// a successful build do nothing.
func (l *Layer) Build(ctx context.Context) error {
	if l.built {
		return nil
	}
	if l.base != nil {
		if err := l.base.Build(ctx); err != nil {
			return err
		}
	}

	restore, err := scope.Chdir(l.cwd)
	if err != nil {
		return errors.NewFilesystemError("build "+l.FullRepoTag(), "failed to enter build directory", err)
	}
	defer restore()

	l.logger.WithField("kind", l.Kind()).Info("Building image")
	id, err := l.strategy.build(ctx, l)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", l.FullRepoTag(), err)
	}

	l.imageID = id
	l.built = true
	l.logger.WithField("id", id).Debug("Image built")
	return nil
}

// Cleanup removes a built temporary image.
func (l *Layer) Cleanup(ctx context.Context) error {
	if !l.temporary || !l.built {
		return nil
	}
	l.logger.Debug("Removing temporary image")
	if _, err := l.drivers.Engine.RemoveImage(ctx, l.repoTag); err != nil {
		return fmt.Errorf("failed to remove temporary image %s: %w", l.repoTag, err)
	}
	return nil
}

// UploadToRegistry replaces the registry tag of a named layer with the built
// image.
func (l *Layer) UploadToRegistry(ctx context.Context) (err error) {
	if l.temporary || l.registry == nil {
		return nil
	}
	if !l.built {
		return fmt.Errorf("cannot upload %s: image is not built", l.FullRepoTag())
	}

	end, err := l.registry.Session(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := end(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	if err := l.registry.DeleteTag(ctx, l.repoTag); err != nil {
		return err
	}
	return l.registry.Post(ctx, l.imageID, l.repoTag)
}

// IsUploaded reports whether a named layer exists under its repo tag, in the
// registry if one is set, else in the local engine. Temporary layers are
// never uploaded.
func (l *Layer) IsUploaded(ctx context.Context) (bool, error) {
	if l.temporary {
		return false, nil
	}
	if l.registry == nil {
		_, ok, err := l.drivers.Engine.InspectID(ctx, l.repoTag)
		return ok, err
	}
	info, err := l.registry.Info(ctx, l.repoTag)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Delete removes the local image of a deletable layer. It reports whether an
// image was removed.
func (l *Layer) Delete(ctx context.Context) (bool, error) {
	if !l.deletable {
		return false, nil
	}
	uploaded, err := l.IsUploaded(ctx)
	if err != nil || !uploaded {
		return false, err
	}
	if l.registry != nil {
		l.logger.WithField("registry", l.registry.Name()).Warn("Deleting images from a registry is not supported")
		return false, nil
	}

	id, ok, err := l.drivers.Engine.InspectID(ctx, l.repoTag)
	if err != nil || !ok {
		return false, err
	}
	if _, err := l.drivers.Engine.RemoveImage(ctx, id); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", l.repoTag, err)
	}
	l.logger.WithField("id", id).Info("Deleted image")
	return true, nil
}

func (l *Layer) String() string {
	if l.name != "" {
		return fmt.Sprintf("%s (%s)", l.name, l.FullRepoTag())
	}
	return l.FullRepoTag()
}

// resolvePath makes p absolute relative to the layer's directory.
func (l *Layer) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.cwd, p)
}
