package layers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/peick/docker-build/executors"
	"github.com/peick/docker-build/registry"
)

// fakeEngine keeps an in-memory image store and records every call as a
// space separated string.
type fakeEngine struct {
	calls  []string
	images map[string]string
	nextID int

	buildErr  error
	importErr error
	commitErr error
	onBuild   func(repoTag, dir string)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: make(map[string]string)}
}

func (f *fakeEngine) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) newID() string {
	f.nextID++
	return fmt.Sprintf("id%d", f.nextID)
}

// count returns how many calls start with prefix.
func (f *fakeEngine) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Build(ctx context.Context, repoTag, dir string) (string, error) {
	f.record("build %s %s", repoTag, dir)
	if f.onBuild != nil {
		f.onBuild(repoTag, dir)
	}
	if f.buildErr != nil {
		return "", f.buildErr
	}
	id := f.newID()
	f.images[repoTag] = id
	return id, nil
}

func (f *fakeEngine) Commit(ctx context.Context, containerID, repoTag string) (string, error) {
	f.record("commit %s %s", containerID, repoTag)
	if f.commitErr != nil {
		return "", f.commitErr
	}
	id := f.newID()
	f.images[repoTag] = id
	return id, nil
}

func (f *fakeEngine) Import(ctx context.Context, archive string) (string, error) {
	f.record("import %s", archive)
	if f.importErr != nil {
		return "", f.importErr
	}
	return f.newID(), nil
}

func (f *fakeEngine) InspectID(ctx context.Context, name string) (string, bool, error) {
	f.record("inspect %s", name)
	if id, ok := f.images[name]; ok {
		return id, true, nil
	}
	for _, id := range f.images {
		if id == name {
			return id, true, nil
		}
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

func (f *fakeEngine) RemoveImage(ctx context.Context, repoTag string) (int, error) {
	f.record("rmi %s", repoTag)
	for tag, id := range f.images {
		if tag == repoTag || id == repoTag {
			delete(f.images, tag)
		}
	}
	return 1, nil
}

type fakeProvisioner struct {
	calls      []string
	upErr      error
	destroyErr error
	onUp       func(dir string)
}

func (f *fakeProvisioner) Up(ctx context.Context, dir string) (string, error) {
	f.calls = append(f.calls, "up "+dir)
	if f.onUp != nil {
		f.onUp(dir)
	}
	if f.upErr != nil {
		return "", f.upErr
	}
	return "fbf460de4e94806c", nil
}

func (f *fakeProvisioner) Destroy(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "destroy "+dir)
	return f.destroyErr
}

type fakeRegistry struct {
	calls   []string
	tags    map[string]string
	infoErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tags: make(map[string]string)}
}

func (f *fakeRegistry) Name() string { return "qa" }

func (f *fakeRegistry) RepoTagURL(repoTag string) string {
	return "registry.example.com/" + repoTag
}

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
	f.calls = append(f.calls, "post "+imageID+" "+repoTag)
	f.tags[repoTag] = imageID
	return nil
}

func (f *fakeRegistry) Info(ctx context.Context, repoTag string) (*registry.TagInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if _, ok := f.tags[repoTag]; ok {
		return &registry.TagInfo{Reference: f.RepoTagURL(repoTag)}, nil
	}
	return nil, nil
}

func newTestDrivers(t *testing.T) (*Drivers, *fakeEngine) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	engine := newFakeEngine()
	return &Drivers{
		Engine:      engine,
		Provisioner: &fakeProvisioner{},
		Runner:      executors.NewLocalRunner(logger),
		Logger:      logger,
	}, engine
}

// mustNative creates a root native layer for repoTag.
func mustNative(t *testing.T, d *Drivers, repoTag string) *Layer {
	t.Helper()
	l, err := NewNative(d, Options{RepoTag: repoTag, Cwd: t.TempDir()})
	if err != nil {
		t.Fatalf("NewNative(%s) error = %v", repoTag, err)
	}
	return l
}
