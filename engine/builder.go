package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peick/docker-build/internal/errors"
	"github.com/peick/docker-build/internal/types"
	"github.com/peick/docker-build/layers"
)

// Builder builds the named layers of a collection that are missing, uploads
// them and removes temporary images afterwards.
type Builder struct {
	layers      *layers.Collection
	force       bool
	logger      logrus.FieldLogger
	progressOut io.Writer
}

type Option func(*Builder)

// WithForceRecreate deletes and rebuilds every named layer.
func WithForceRecreate(force bool) Option {
	return func(b *Builder) {
		b.force = force
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithProgressOutput prints one line per image built to w.
func WithProgressOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.progressOut = w
	}
}

func NewBuilder(collection *layers.Collection, opts ...Option) *Builder {
	b := &Builder{
		layers: collection,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs select, build and upload, then cleanup. Cleanup runs on every
// path, also when ctx was cancelled. The result is never nil; the error is
// set whenever the result's status is failed.
func (b *Builder) Build(ctx context.Context) (*types.BuildResult, error) {
	start := time.Now()
	result := &types.BuildResult{}

	selected, err := b.selectTargets(ctx, result)
	if err == nil && len(selected) > 0 {
		err = b.buildAndUpload(ctx, selected, result)
	}

	if cleanupErr := b.cleanup(context.WithoutCancel(ctx), result); cleanupErr != nil && err == nil {
		err = cleanupErr
	}

	if err != nil {
		result.Status = types.BuildStatusFailed
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	b.logger.WithFields(logrus.Fields{
		"status":   result.Status,
		"built":    len(result.Built),
		"duration": result.Duration.Round(time.Millisecond).String(),
	}).Info("Build finished")
	return result, err
}

// selectTargets returns the named layers to build and sets the status for
// the cases where nothing is built.
func (b *Builder) selectTargets(ctx context.Context, result *types.BuildResult) ([]*layers.Layer, error) {
	named := b.layers.NamedLayers()
	if len(named) == 0 {
		b.logger.Warn("Nothing to do: no named images defined")
		result.Status = types.BuildStatusNothingToDo
		return nil, nil
	}

	if b.force {
		for _, l := range named {
			deleted, err := l.Delete(ctx)
			if err != nil {
				b.logger.WithError(err).WithField("image", l.FullRepoTag()).Error("Failed to delete image")
				continue
			}
			if deleted {
				b.logger.WithField("image", l.FullRepoTag()).Info("Deleted image for recreation")
			}
		}
		return named, nil
	}

	var selected []*layers.Layer
	for _, l := range named {
		uploaded, err := l.IsUploaded(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", l.FullRepoTag(), err)
		}
		if !uploaded {
			selected = append(selected, l)
		}
	}
	if len(selected) == 0 {
		b.logger.Info("All images are up to date")
		result.Status = types.BuildStatusUpToDate
	}
	return selected, nil
}

// buildAndUpload stops at the first failure. Images already built and
// uploaded stay in place.
func (b *Builder) buildAndUpload(ctx context.Context, selected []*layers.Layer, result *types.BuildResult) error {
	for i, l := range selected {
		if b.progressOut != nil {
			fmt.Fprintf(b.progressOut, "[%d/%d] Building %s\n", i+1, len(selected), l.FullRepoTag())
		}

		if err := l.Build(ctx); err != nil {
			result.Failed = append(result.Failed, l.FullRepoTag())
			return err
		}
		if err := l.UploadToRegistry(ctx); err != nil {
			result.Failed = append(result.Failed, l.FullRepoTag())
			return fmt.Errorf("failed to upload %s: %w", l.FullRepoTag(), err)
		}
		result.Built = append(result.Built, l.FullRepoTag())
	}
	result.Status = types.BuildStatusBuilt
	return nil
}

// cleanup removes every built temporary image. A failure is logged and
// recorded, and the remaining images are still cleaned up.
func (b *Builder) cleanup(ctx context.Context, result *types.BuildResult) error {
	collector := errors.NewErrorCollector()
	for _, l := range b.layers.Layers() {
		if err := l.Cleanup(ctx); err != nil {
			b.logger.WithError(err).WithField("image", l.RepoTag()).Error("Cleanup failed")
			result.CleanupErrors = append(result.CleanupErrors, err.Error())
			collector.Add(err)
		}
	}
	return collector.ToError()
}

// LayerStatus is one line of the image listing.
type LayerStatus struct {
	Layer    *layers.Layer
	Uploaded bool
}

func (s LayerStatus) String() string {
	mark := "-"
	if s.Uploaded {
		mark = "+"
	}
	return mark + " " + s.Layer.FullRepoTag()
}

// Status reports for every named layer whether it is uploaded, in build
// order.
func (b *Builder) Status(ctx context.Context) ([]LayerStatus, error) {
	named := b.layers.NamedLayers()
	statuses := make([]LayerStatus, 0, len(named))
	for _, l := range named {
		uploaded, err := l.IsUploaded(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", l.FullRepoTag(), err)
		}
		statuses = append(statuses, LayerStatus{Layer: l, Uploaded: uploaded})
	}
	return statuses, nil
}
