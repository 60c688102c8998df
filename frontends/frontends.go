package frontends

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peick/docker-build/layers"
	"github.com/peick/docker-build/registry"
)

// StdinPath reads the build description from standard input.
const StdinPath = "-"

// DefaultFrontend loads descriptions whose extension no frontend claims.
const DefaultFrontend = "hcl"

// Options are the collaborators a frontend constructs layers with.
type Options struct {
	Drivers *layers.Drivers
	// Registries resolves registry references. Registries declared in the
	// description are added unless a registry of the same name exists.
	Registries *registry.Collection
	// Stdin is read when the path is StdinPath.
	Stdin io.Reader
}

// Description is a loaded build description.
type Description struct {
	Layers     *layers.Collection
	Registries *registry.Collection
	// Files lists every file read, in load order.
	Files []string
}

// Frontend turns a build description into layers.
type Frontend interface {
	Load(ctx context.Context, path string, opts Options) (*Description, error)
}

var (
	frontends  = make(map[string]Frontend)
	extensions = make(map[string]string)
)

// RegisterFrontend makes a frontend available under name and for files with
// any of the given extensions.
func RegisterFrontend(name string, frontend Frontend, exts ...string) {
	frontends[name] = frontend
	for _, ext := range exts {
		extensions[strings.ToLower(ext)] = name
	}
}

func GetFrontend(name string) (Frontend, error) {
	frontend, exists := frontends[name]
	if !exists {
		return nil, fmt.Errorf("frontend %s not found", name)
	}
	return frontend, nil
}

// ForPath picks the frontend by file extension, falling back to
// DefaultFrontend.
func ForPath(path string) (Frontend, error) {
	name := DefaultFrontend
	if path != StdinPath {
		if n, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
			name = n
		}
	}
	return GetFrontend(name)
}

func ListFrontends() []string {
	names := make([]string, 0, len(frontends))
	for name := range frontends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
