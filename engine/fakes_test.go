package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/peick/docker-build/executors"
	"github.com/peick/docker-build/layers"
	"github.com/peick/docker-build/registry"
)

type fakeEngine struct {
	calls  []string
	images map[string]string
	nextID int

	importErr error
	rmiErr    map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: make(map[string]string), rmiErr: make(map[string]error)}
}

func (f *fakeEngine) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) newID() string {
	f.nextID++
	return fmt.Sprintf("sha%d", f.nextID)
}

func (f *fakeEngine) callsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) Build(ctx context.Context, repoTag, dir string) (string, error) {
	f.record("build %s", repoTag)
	id := f.newID()
	f.images[repoTag] = id
	return id, nil
}

func (f *fakeEngine) Commit(ctx context.Context, containerID, repoTag string) (string, error) {
	f.record("commit %s %s", containerID, repoTag)
	id := f.newID()
	f.images[repoTag] = id
	return id, nil
}

func (f *fakeEngine) Import(ctx context.Context, archive string) (string, error) {
	f.record("import %s", filepath.Base(archive))
	if f.importErr != nil {
		return "", f.importErr
	}
	return f.newID(), nil
}

func (f *fakeEngine) InspectID(ctx context.Context, name string) (string, bool, error) {
	if id, ok := f.images[name]; ok {
		return id, true, nil
	}
	return "", false, nil
}

func (f *fakeEngine) Pull(ctx context.Context, repoTag string) error {
	f.record("pull %s", repoTag)
	f.images[repoTag] = f.newID()
	return nil
}

func (f *fakeEngine) Tag(ctx context.Context, image, repoTag string) error {
	f.record("tag %s %s", image, repoTag)
	f.images[repoTag] = image
	return nil
}

func (f *fakeEngine) RemoveImage(ctx context.Context, name string) (int, error) {
	f.record("rmi %s", name)
	if err := f.rmiErr[name]; err != nil {
		return 0, err
	}
	for tag, id := range f.images {
		if tag == name || id == name {
			delete(f.images, tag)
		}
	}
	return 1, nil
}

type fakeRegistry struct {
	calls   []string
	tags    map[string]bool
	infoErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tags: make(map[string]bool)}
}

func (f *fakeRegistry) Name() string { return "qa" }

func (f *fakeRegistry) RepoTagURL(repoTag string) string { return "qa.example.com/" + repoTag }

func (f *fakeRegistry) Session(ctx context.Context) (func() error, error) {
	f.calls = append(f.calls, "login")
	return func() error {
		f.calls = append(f.calls, "logout")
		return nil
	}, nil
}

func (f *fakeRegistry) DeleteTag(ctx context.Context, repoTag string) error {
	f.calls = append(f.calls, "delete "+repoTag)
	delete(f.tags, repoTag)
	return nil
}

func (f *fakeRegistry) Post(ctx context.Context, imageID, repoTag string) error {
	f.calls = append(f.calls, "post "+repoTag)
	f.tags[repoTag] = true
	return nil
}

func (f *fakeRegistry) Info(ctx context.Context, repoTag string) (*registry.TagInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.tags[repoTag] {
		return &registry.TagInfo{Reference: f.RepoTagURL(repoTag)}, nil
	}
	return nil, nil
}

// fixture builds a collection against a fake engine inside a temporary
// directory that holds a Dockerfile.
type fixture struct {
	t       *testing.T
	dir     string
	engine  *fakeEngine
	drivers *layers.Drivers
	layers  *layers.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0644); err != nil {
		t.Fatal(err)
	}
	engine := newFakeEngine()
	return &fixture{
		t:      t,
		dir:    dir,
		engine: engine,
		drivers: &layers.Drivers{
			Engine: engine,
			Runner: executors.NewLocalRunner(logger),
			Logger: logger,
		},
		layers: layers.NewCollection(),
	}
}

func (f *fixture) add(l *layers.Layer, err error) *layers.Layer {
	f.t.Helper()
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.layers.Add(l); err != nil {
		f.t.Fatal(err)
	}
	return l
}

// opts gives every layer its own directory; dockerfile layers point at
// f.dir explicitly.
func (f *fixture) opts(repoTag string, base *layers.Layer, reg layers.Registry) layers.Options {
	return layers.Options{Name: repoTag, RepoTag: repoTag, Base: base, Registry: reg, Cwd: f.t.TempDir()}
}

func (f *fixture) builder(opts ...Option) *Builder {
	logger, _ := test.NewNullLogger()
	return NewBuilder(f.layers, append([]Option{WithLogger(logger)}, opts...)...)
}
