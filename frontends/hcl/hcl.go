// Package hcl loads build descriptions written in HCL.
//
//	registry "local" {
//	  url = "localhost:5000"
//	}
//
//	include = ["common/images.hcl"]
//
//	image "base" {
//	  repotag    = "test/base"
//	  dockerfile = "base/"
//	  registry   = registry.local
//	}
//
//	image "scratchpad" {
//	  base         = image.base
//	  temp_repotag = "scratch/${username}:${uniq_id16}"
//	  run          = ["apt-get update"]
//	}
//
// Images may reference each other in any declaration order. A string base
// declares an implicit native image for that repo tag.
package hcl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/sirupsen/logrus"

	"github.com/peick/docker-build/frontends"
	"github.com/peick/docker-build/internal/errors"
	"github.com/peick/docker-build/layers"
	"github.com/peick/docker-build/registry"
)

const stdinFilename = "<stdin>"

// Frontend loads HCL build descriptions.
type Frontend struct{}

func init() {
	frontends.RegisterFrontend("hcl", &Frontend{}, ".hcl")
}

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "include"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "registry", LabelNames: []string{"name"}},
		{Type: "image", LabelNames: []string{"name"}},
	},
}

type registryBody struct {
	URL string `hcl:"url"`
}

type imageBody struct {
	RepoTag     string         `hcl:"repotag,optional"`
	TempRepoTag hcl.Expression `hcl:"temp_repotag,optional"`
	Base        hcl.Expression `hcl:"base,optional"`
	Registry    hcl.Expression `hcl:"registry,optional"`

	Dockerfile string   `hcl:"dockerfile,optional"`
	Vagrant    string   `hcl:"vagrant,optional"`
	RootFS     string   `hcl:"rootfs,optional"`
	Pre        []string `hcl:"pre,optional"`
	Post       []string `hcl:"post,optional"`

	Env        map[string]string `hcl:"env,optional"`
	Run        []string          `hcl:"run,optional"`
	Workdir    string            `hcl:"workdir,optional"`
	User       string            `hcl:"user,optional"`
	Cmd        string            `hcl:"cmd,optional"`
	Entrypoint string            `hcl:"entrypoint,optional"`
	Expose     []string          `hcl:"expose,optional"`
	Volume     []string          `hcl:"volume,optional"`
	Exec       []string          `hcl:"exec,optional"`
}

func (b *imageBody) fields() layers.Fields {
	return layers.Fields{
		Env:        b.Env,
		Run:        b.Run,
		Workdir:    b.Workdir,
		User:       b.User,
		Cmd:        b.Cmd,
		Entrypoint: b.Entrypoint,
		Expose:     b.Expose,
		Volume:     b.Volume,
		Exec:       b.Exec,
	}
}

// declaration is an image block together with the scope it was read in.
type declaration struct {
	name string
	body imageBody
	rng  hcl.Range
	dir  string
	ctx  *hcl.EvalContext

	baseName    string
	baseRepoTag string
	baseRange   hcl.Range
	registry    layers.Registry
}

type loader struct {
	opts       frontends.Options
	registries *registry.Collection
	logger     logrus.FieldLogger

	parser *hclparse.Parser
	files  fileSet
	seen   map[string]bool
	loaded []string

	decls      map[string]*declaration
	order      []*declaration
	registryAt map[string]hcl.Range
}

// Load reads the description at path, "-" for stdin, with all its includes
// and constructs its layers in dependency order.
func (f *Frontend) Load(ctx context.Context, path string, opts frontends.Options) (*frontends.Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Drivers == nil {
		return nil, fmt.Errorf("load %s: no drivers configured", path)
	}

	logger := opts.Drivers.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registries := opts.Registries
	if registries == nil {
		engine, _ := opts.Drivers.Engine.(registry.Engine)
		registries = registry.NewCollection(engine, registry.WithLogger(logger))
	}

	l := &loader{
		opts:       opts,
		registries: registries,
		logger:     logger,
		parser:     hclparse.NewParser(),
		files:      make(fileSet),
		seen:       make(map[string]bool),
		decls:      make(map[string]*declaration),
		registryAt: make(map[string]hcl.Range),
	}
	if err := l.loadFile(path); err != nil {
		return nil, err
	}

	collection, err := l.construct()
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"files":  len(l.loaded),
		"images": collection.Len(),
	}).Debug("Build description loaded")

	return &frontends.Description{
		Layers:     collection,
		Registries: registries,
		Files:      l.loaded,
	}, nil
}

func (l *loader) read(path string) (src []byte, filename, dir string, err error) {
	if path == frontends.StdinPath {
		if l.opts.Stdin == nil {
			return nil, "", "", fmt.Errorf("no standard input to read the build description from")
		}
		if src, err = io.ReadAll(l.opts.Stdin); err != nil {
			return nil, "", "", fmt.Errorf("failed to read build description from stdin: %w", err)
		}
		dir, err = os.Getwd()
		if err != nil {
			return nil, "", "", errors.NewFilesystemError("load description", "failed to get working directory", err)
		}
		return src, stdinFilename, dir, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", "", errors.NewFilesystemError("load description", "failed to resolve path", err)
	}
	src, err = os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, "", "", errors.NewNotFoundError("load description", path)
	}
	if err != nil {
		return nil, "", "", errors.NewFilesystemError("load description", "failed to read "+path, err)
	}
	return src, filepath.Clean(path), filepath.Dir(abs), nil
}

// loadFile parses one file. Included files are loaded before the blocks of
// the including file; a file is only read once.
func (l *loader) loadFile(path string) error {
	if path != frontends.StdinPath {
		if abs, err := filepath.Abs(path); err == nil {
			if l.seen[abs] {
				l.logger.WithField("file", path).Debug("Skipping description that was already loaded")
				return nil
			}
			l.seen[abs] = true
		}
	}

	src, filename, dir, err := l.read(path)
	if err != nil {
		return err
	}
	l.files[filename] = true
	l.loaded = append(l.loaded, filename)
	l.logger.WithField("file", filename).Debug("Loading build description")

	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return l.files.error(filename, diags)
	}
	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return l.files.error(filename, diags)
	}

	evalCtx := newEvalContext(dir)

	if attr, ok := content.Attributes["include"]; ok {
		var includes []string
		if diags := gohcl.DecodeExpression(attr.Expr, evalCtx, &includes); diags.HasErrors() {
			return l.files.error(filename, diags)
		}
		for _, include := range includes {
			if !filepath.IsAbs(include) {
				include = filepath.Join(dir, include)
			}
			if err := l.loadFile(include); err != nil {
				return err
			}
		}
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "registry":
			diags = diags.Extend(l.addRegistry(block, evalCtx))
		case "image":
			diags = diags.Extend(l.addImage(block, dir, evalCtx))
		}
	}
	if diags.HasErrors() {
		return l.files.error(filename, diags)
	}
	return nil
}

// addRegistry registers a registry block. Registries configured outside the
// description take precedence.
func (l *loader) addRegistry(block *hcl.Block, ctx *hcl.EvalContext) hcl.Diagnostics {
	name := block.Labels[0]
	if prev, exists := l.registryAt[name]; exists {
		return hcl.Diagnostics{diagnostic("Duplicate registry",
			fmt.Sprintf("Registry %q was already declared at %s.", name, prev), &block.DefRange)}
	}
	l.registryAt[name] = block.DefRange

	var body registryBody
	if diags := gohcl.DecodeBody(block.Body, ctx, &body); diags.HasErrors() {
		return diags
	}
	if _, exists := l.registries.Get(name); exists {
		l.logger.WithField("registry", name).Debug("Registry is configured outside the description, ignoring block")
		return nil
	}
	if _, err := l.registries.Add(name, body.URL); err != nil {
		return hcl.Diagnostics{diagnostic("Invalid registry", err.Error(), &block.DefRange)}
	}
	return nil
}

func (l *loader) addImage(block *hcl.Block, dir string, ctx *hcl.EvalContext) hcl.Diagnostics {
	name := block.Labels[0]
	if prev, exists := l.decls[name]; exists {
		return hcl.Diagnostics{diagnostic("Duplicate image",
			fmt.Sprintf("Image %q was already declared at %s.", name, prev.rng), &block.DefRange)}
	}

	d := &declaration{name: name, rng: block.DefRange, dir: dir, ctx: ctx}
	if diags := gohcl.DecodeBody(block.Body, ctx, &d.body); diags.HasErrors() {
		return diags
	}
	l.decls[name] = d
	l.order = append(l.order, d)
	return nil
}

// construct resolves references and creates the layers, bases first.
func (l *loader) construct() (*layers.Collection, error) {
	root := l.loaded[0]

	g := newGraph()
	for _, d := range l.order {
		g.addNode(d.name)
	}
	var diags hcl.Diagnostics
	for _, d := range l.order {
		diags = diags.Extend(l.resolveBase(d, g))
		diags = diags.Extend(l.resolveRegistry(d))
	}
	if diags.HasErrors() {
		return nil, l.files.error(root, diags)
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, errors.NewConfigurationError(root, err.Error(), nil)
	}

	collection := layers.NewCollection()
	created := make(map[string]*layers.Layer, len(order))
	implicit := make(map[string]*layers.Layer)

	for _, name := range order {
		d := l.decls[name]

		var base *layers.Layer
		switch {
		case d.baseName != "":
			base = created[d.baseName]
		case d.baseRepoTag != "":
			base = implicit[d.baseRepoTag]
			if base == nil {
				base, err = layers.NewNative(l.opts.Drivers, layers.Options{RepoTag: d.baseRepoTag, Cwd: d.dir})
				if err != nil {
					return nil, fmt.Errorf("%s: %w", at(d.baseRange, "base of image %q", d.name), err)
				}
				if err := collection.Add(base); err != nil {
					return nil, err
				}
				implicit[d.baseRepoTag] = base
			}
		}

		layer, err := l.newLayer(d, base)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at(d.rng, "image %q", d.name), err)
		}
		if err := collection.Add(layer); err != nil {
			return nil, err
		}
		created[name] = layer
	}
	return collection, nil
}

func (l *loader) resolveBase(d *declaration, g *graph) hcl.Diagnostics {
	expr := d.body.Base
	if isNull(expr) {
		return nil
	}
	if name, ok := referenceName(expr, "image"); ok {
		if _, exists := l.decls[name]; !exists {
			return hcl.Diagnostics{diagnostic("Unknown image",
				fmt.Sprintf("No image %q is declared.", name), expr.Range().Ptr())}
		}
		d.baseName = name
		if err := g.addDependency(d.name, name); err != nil {
			return hcl.Diagnostics{diagnostic("Invalid base", err.Error(), expr.Range().Ptr())}
		}
		return nil
	}

	repoTag, diags := evalString(expr, d.ctx)
	if diags.HasErrors() {
		return diags
	}
	if repoTag == "" {
		return hcl.Diagnostics{diagnostic("Invalid base",
			"The base must be an image reference such as image.name or a repo tag.", expr.Range().Ptr())}
	}
	d.baseRepoTag = repoTag
	d.baseRange = expr.Range()
	return nil
}

func (l *loader) resolveRegistry(d *declaration) hcl.Diagnostics {
	expr := d.body.Registry
	if isNull(expr) {
		return nil
	}
	name, ok := referenceName(expr, "registry")
	if !ok {
		var diags hcl.Diagnostics
		if name, diags = evalString(expr, d.ctx); diags.HasErrors() {
			return diags
		}
	}
	reg, exists := l.registries.Get(name)
	if !exists {
		return hcl.Diagnostics{diagnostic("Unknown registry",
			fmt.Sprintf("No registry %q is declared or configured.", name), expr.Range().Ptr())}
	}
	d.registry = reg
	return nil
}

// newLayer dispatches on the attributes set: rootfs, vagrant, dockerfile,
// dockerfile fields, and finally a native image.
func (l *loader) newLayer(d *declaration, base *layers.Layer) (*layers.Layer, error) {
	b := &d.body
	drivers := l.opts.Drivers
	opts := layers.Options{
		Name:     d.name,
		RepoTag:  b.RepoTag,
		Base:     base,
		Registry: d.registry,
		Cwd:      d.dir,
	}
	if !isNull(b.TempRepoTag) {
		opts.TempRepoTag = tempRepoTagTemplate(b.TempRepoTag, d.ctx, l.files)
	}

	fields := b.fields()
	variants := 0
	for _, set := range []bool{b.RootFS != "", b.Vagrant != "", b.Dockerfile != "", !fields.Empty()} {
		if set {
			variants++
		}
	}
	if variants > 1 {
		return nil, errors.NewValidationError("create image "+d.name,
			"rootfs, vagrant, dockerfile and dockerfile fields exclude each other")
	}
	if b.RootFS == "" && (len(b.Pre) > 0 || len(b.Post) > 0) {
		return nil, errors.NewValidationError("create image "+d.name, "pre and post actions require rootfs")
	}

	switch {
	case b.RootFS != "":
		return layers.NewRootFS(drivers, opts, layers.RootFS{Archive: b.RootFS, Pre: b.Pre, Post: b.Post})
	case b.Vagrant != "":
		return layers.NewVagrant(drivers, opts, b.Vagrant)
	case b.Dockerfile != "":
		return layers.NewDockerfile(drivers, opts, b.Dockerfile)
	case !fields.Empty():
		return layers.NewFields(drivers, opts, fields)
	case opts.TempRepoTag == nil:
		return layers.NewNative(drivers, opts)
	default:
		return nil, errors.NewValidationError("create image "+d.name, "temp_repotag needs a build: rootfs, vagrant, dockerfile or dockerfile fields")
	}
}
