// Package registry is the upload target of named images.
//
// Images reach a registry through the container engine (tag + push) so the
// engine's credential store and daemon configuration apply. Queries and tag
// deletion talk to the registry HTTP API directly through
// go-containerregistry.
//
//	reg, err := registry.New("qa", "user:pass@localhost:5000", engine)
//	end, err := reg.Session(ctx)
//	if err != nil {
//		return err
//	}
//	defer end()
//	err = reg.Post(ctx, imageID, "test/sample")
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/sirupsen/logrus"

	"github.com/peick/docker-build/internal/errors"
)

// Engine is the part of the container engine a registry needs.
type Engine interface {
	Login(ctx context.Context, registryURL, username, password string) error
	Logout(ctx context.Context, registryURL string) error
	Tag(ctx context.Context, image, repoTag string) error
	Push(ctx context.Context, repoTag string) error
}

// TagInfo describes a tag present in a registry.
type TagInfo struct {
	Reference string
	Digest    string
	MediaType string
	Size      int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithTransport sets the HTTP transport of API calls.
func WithTransport(t http.RoundTripper) Option {
	return func(r *Registry) { r.transport = t }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Registry) { r.logger = logger }
}

type Registry struct {
	name      string
	url       *URL
	engine    Engine
	transport http.RoundTripper
	logger    logrus.FieldLogger
	loggedIn  bool
}

// New creates the registry called name at rawURL.
func New(name, rawURL string, engine Engine, opts ...Option) (*Registry, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, errors.NewErrorBuilder().
			Category(errors.ErrorCategoryValidation).
			Operation("parse registry url").
			Resource(name).
			Message("invalid registry url").
			Cause(err).
			Build()
	}
	return NewFromURL(name, u, engine, opts...), nil
}

// NewFromURL creates the registry called name at a parsed url.
func NewFromURL(name string, u *URL, engine Engine, opts ...Option) *Registry {
	r := &Registry{
		name:   name,
		url:    u,
		engine: engine,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithFields(logrus.Fields{"registry": name, "url": u.String()})
	return r
}

func (r *Registry) Name() string {
	return r.name
}

// URL returns the registry url with scheme and without credentials.
func (r *Registry) URL() string {
	return r.url.String()
}

func (r *Registry) DockerURL() string {
	return r.url.DockerURL()
}

func (r *Registry) RepoTagURL(repoTag string) string {
	return r.url.RepoTagURL(repoTag)
}

// Session logs in through the engine when the registry has credentials. The
// returned function logs out again and must be called on every exit path.
func (r *Registry) Session(ctx context.Context) (func() error, error) {
	if r.loggedIn || r.url.Username == "" {
		return func() error { return nil }, nil
	}

	if err := r.engine.Login(ctx, r.DockerURL(), r.url.Username, r.url.Password); err != nil {
		return nil, errors.NewRegistryError("login", "failed to log in to "+r.DockerURL(), err)
	}
	r.loggedIn = true
	r.logger.Debug("Logged in")

	done := false
	return func() error {
		if done || !r.loggedIn {
			return nil
		}
		done = true
		r.loggedIn = false
		// logout must run even when the surrounding operation was cancelled
		if err := r.engine.Logout(context.WithoutCancel(ctx), r.DockerURL()); err != nil {
			return errors.NewRegistryError("logout", "failed to log out of "+r.DockerURL(), err)
		}
		r.logger.Debug("Logged out")
		return nil
	}, nil
}

func (r *Registry) checkLoggedIn() error {
	if r.loggedIn || r.url.Username == "" {
		return nil
	}
	return errors.NewRegistryError("session", "not logged in to "+r.DockerURL(), nil)
}

func (r *Registry) nameOptions() []name.Option {
	if r.url.Insecure() {
		return []name.Option{name.Insecure}
	}
	return nil
}

func (r *Registry) reference(repoTag string) (name.Reference, error) {
	ref, err := name.ParseReference(r.RepoTagURL(repoTag), r.nameOptions()...)
	if err != nil {
		return nil, errors.NewErrorBuilder().
			Category(errors.ErrorCategoryValidation).
			Operation("parse reference").
			Resource(r.RepoTagURL(repoTag)).
			Message("invalid image reference").
			Cause(err).
			Build()
	}
	return ref, nil
}

func (r *Registry) remoteOptions(ctx context.Context, reg name.Registry) []remote.Option {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuth(authenticator(r.url, reg)),
	}
	if r.transport != nil {
		opts = append(opts, remote.WithTransport(r.transport))
	}
	return opts
}

// DeleteTag removes repoTag from the registry. Missing tags and registries
// that do not support deletion are not errors.
func (r *Registry) DeleteTag(ctx context.Context, repoTag string) error {
	if err := r.checkLoggedIn(); err != nil {
		return err
	}
	ref, err := r.reference(repoTag)
	if err != nil {
		return err
	}

	err = remote.Delete(ref, r.remoteOptions(ctx, ref.Context().Registry)...)
	if err == nil {
		r.logger.WithField("tag", repoTag).Debug("Deleted remote tag")
		return nil
	}
	if ignorableDeleteError(err) {
		r.logger.WithField("tag", repoTag).WithError(err).Debug("Remote tag not deleted")
		return nil
	}
	return errors.NewRegistryError("delete tag", "failed to delete "+ref.String(), err)
}

func ignorableDeleteError(err error) bool {
	var terr *transport.Error
	if !stderrors.As(err, &terr) {
		return false
	}
	switch terr.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return true
	}
	for _, diag := range terr.Errors {
		switch diag.Code {
		case transport.UnsupportedErrorCode, transport.DigestInvalidErrorCode,
			transport.ManifestUnknownErrorCode, transport.NameUnknownErrorCode:
			return true
		}
	}
	return false
}

// Post tags imageID with the registry-qualified repoTag and pushes it.
func (r *Registry) Post(ctx context.Context, imageID, repoTag string) error {
	if err := r.checkLoggedIn(); err != nil {
		return err
	}
	target := r.RepoTagURL(repoTag)
	if err := r.engine.Tag(ctx, imageID, target); err != nil {
		return err
	}
	if err := r.engine.Push(ctx, target); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"image": imageID, "tag": target}).Info("Pushed image")
	return nil
}

// Info returns the manifest descriptor of repoTag, or nil if the registry
// does not have it.
func (r *Registry) Info(ctx context.Context, repoTag string) (*TagInfo, error) {
	ref, err := r.reference(repoTag)
	if err != nil {
		return nil, err
	}

	desc, err := remote.Head(ref, r.remoteOptions(ctx, ref.Context().Registry)...)
	if err != nil {
		var terr *transport.Error
		if stderrors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.NewRegistryError("tag info", "failed to query "+ref.String(), err)
	}

	return &TagInfo{
		Reference: ref.String(),
		Digest:    desc.Digest.String(),
		MediaType: string(desc.MediaType),
		Size:      desc.Size,
	}, nil
}

// Images lists every tag of every repository below the registry path as full
// repo tag urls, sorted.
func (r *Registry) Images(ctx context.Context) ([]string, error) {
	reg, err := name.NewRegistry(r.url.HostPort(), r.nameOptions()...)
	if err != nil {
		return nil, errors.NewRegistryError("catalog", "invalid registry "+r.url.HostPort(), err)
	}
	opts := r.remoteOptions(ctx, reg)

	repos, err := remote.Catalog(ctx, reg, opts...)
	if err != nil {
		return nil, errors.NewRegistryError("catalog", "failed to list repositories of "+r.URL(), err)
	}

	prefix := strings.TrimPrefix(r.url.Path, "/")
	var images []string
	for _, repoName := range repos {
		relative := repoName
		if prefix != "" {
			if !strings.HasPrefix(repoName, prefix+"/") {
				continue
			}
			relative = strings.TrimPrefix(repoName, prefix+"/")
		}

		repo := reg.Repo(repoName)
		tags, err := remote.List(repo, opts...)
		if err != nil {
			return nil, errors.NewRegistryError("list tags", "failed to list tags of "+repoName, err)
		}
		for _, tag := range tags {
			images = append(images, r.RepoTagURL(fmt.Sprintf("%s:%s", relative, tag)))
		}
	}

	sort.Strings(images)
	return images, nil
}
