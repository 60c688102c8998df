package layers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peick/docker-build/internal/errors"
	"github.com/peick/docker-build/internal/scope"
)

const (
	dockerfileName  = "Dockerfile"
	vagrantfileName = "Vagrantfile"
)

// buildfile is a build description the tool expects under a fixed name, such
// as Dockerfile or Vagrantfile.
type buildfile struct {
	path     string
	basename string
}

// locateBuildfile accepts a directory containing basename or a file of any
// name. The file must exist.
func locateBuildfile(l *Layer, dirOrFile, basename string) (buildfile, error) {
	path := l.resolvePath(dirOrFile)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, basename)
	}
	if _, err := os.Stat(path); err != nil {
		return buildfile{}, errors.NewNotFoundError("create image "+l.repoTag, path)
	}
	return buildfile{path: path, basename: basename}, nil
}

// inDir runs fn in the directory of the file. A file with a different name
// is linked under the fixed name for the duration of fn.
func (b buildfile) inDir(fn func(dir string) error) error {
	dir := filepath.Dir(b.path)
	if filepath.Base(b.path) != b.basename {
		release, err := scope.Symlink(b.path, filepath.Join(dir, b.basename))
		if err != nil {
			return errors.NewFilesystemError("link "+b.basename, "failed to link build file", err)
		}
		defer release()
	}
	return fn(dir)
}

type dockerfileStrategy struct {
	file buildfile
}

// NewDockerfile creates a layer built from a Dockerfile. path is a directory
// containing a Dockerfile or a file of any name. A base only orders the
// build; the Dockerfile names its own FROM.
func NewDockerfile(d *Drivers, opts Options, path string) (*Layer, error) {
	l, err := newLayer(d, opts)
	if err != nil {
		return nil, err
	}
	file, err := locateBuildfile(l, path, dockerfileName)
	if err != nil {
		return nil, err
	}
	return l.attach(&dockerfileStrategy{file: file}), nil
}

func (s *dockerfileStrategy) kind() Kind { return KindDockerfile }

func (s *dockerfileStrategy) build(ctx context.Context, l *Layer) (string, error) {
	var id string
	err := s.file.inDir(func(dir string) error {
		var err error
		id, err = l.drivers.Engine.Build(ctx, l.repoTag, dir)
		return err
	})
	return id, err
}

// Fields are Dockerfile instructions rendered on top of the base image.
type Fields struct {
	Env        map[string]string
	Run        []string
	Workdir    string
	User       string
	Cmd        string
	Entrypoint string
	Expose     []string
	Volume     []string
	Exec       []string
}

// Empty reports whether no instruction is set.
func (f Fields) Empty() bool {
	return len(f.Env) == 0 && len(f.Run) == 0 && f.Workdir == "" && f.User == "" &&
		f.Cmd == "" && f.Entrypoint == "" && len(f.Expose) == 0 && len(f.Volume) == 0 &&
		len(f.Exec) == 0
}

// Render writes the Dockerfile: FROM first, then ENV sorted by key, RUN,
// WORKDIR, USER, CMD, ENTRYPOINT, EXPOSE, VOLUME and EXEC. Absent fields are
// skipped; list fields emit one line per value.
func (f Fields) Render(from string) string {
	lines := []string{"FROM " + from}

	keys := make([]string, 0, len(f.Env))
	for k := range f.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("ENV %s=%s", k, quoteEnv(f.Env[k])))
	}

	add := func(instruction string, values ...string) {
		for _, v := range values {
			if v != "" {
				lines = append(lines, instruction+" "+v)
			}
		}
	}
	add("RUN", f.Run...)
	add("WORKDIR", f.Workdir)
	add("USER", f.User)
	add("CMD", f.Cmd)
	add("ENTRYPOINT", f.Entrypoint)
	add("EXPOSE", f.Expose...)
	add("VOLUME", f.Volume...)
	add("EXEC", f.Exec...)

	return strings.Join(lines, "\n")
}

func quoteEnv(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"'\\$") {
		return strconv.Quote(v)
	}
	return v
}

type fieldsStrategy struct {
	fields Fields
}

// NewFields creates a layer from instructions rendered into a temporary
// Dockerfile on top of the base's image.
func NewFields(d *Drivers, opts Options, fields Fields) (*Layer, error) {
	l, err := newLayer(d, opts)
	if err != nil {
		return nil, err
	}
	if l.base == nil {
		return nil, errors.NewValidationError("create image "+l.repoTag, "a base image is required for dockerfile fields")
	}
	if fields.Empty() {
		return nil, errors.NewValidationError("create image "+l.repoTag, "no dockerfile fields set")
	}
	return l.attach(&fieldsStrategy{fields: fields}), nil
}

func (s *fieldsStrategy) kind() Kind { return KindFields }

func (s *fieldsStrategy) build(ctx context.Context, l *Layer) (string, error) {
	content := s.fields.Render(l.base.imageID)
	l.logger.WithField("dockerfile", content).Debug("Rendered Dockerfile")

	path, release, err := scope.TempFile(l.cwd, ".dockerfile-*", []byte(content))
	if err != nil {
		return "", errors.NewFilesystemError("write Dockerfile", "failed to write temporary Dockerfile", err)
	}
	defer release()

	file := &dockerfileStrategy{file: buildfile{path: path, basename: dockerfileName}}
	return file.build(ctx, l)
}
