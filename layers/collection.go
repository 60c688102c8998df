package layers

import (
	"fmt"
)

// Collection holds the layers of a build description in declaration order.
type Collection struct {
	layers []*Layer
	byName map[string]*Layer
}

func NewCollection() *Collection {
	return &Collection{byName: make(map[string]*Layer)}
}

// Add appends a layer. Declaration names must be unique; unnamed layers are
// always accepted.
func (c *Collection) Add(l *Layer) error {
	if l.name != "" {
		if _, exists := c.byName[l.name]; exists {
			return fmt.Errorf("image %q is declared twice", l.name)
		}
		c.byName[l.name] = l
	}
	c.layers = append(c.layers, l)
	return nil
}

// Layers returns every layer in declaration order.
func (c *Collection) Layers() []*Layer {
	return c.layers
}

func (c *Collection) Len() int {
	return len(c.layers)
}

func (c *Collection) Lookup(name string) (*Layer, bool) {
	l, ok := c.byName[name]
	return l, ok
}

// Roots returns the layers without a base in declaration order.
func (c *Collection) Roots() []*Layer {
	var roots []*Layer
	for _, l := range c.layers {
		if l.IsRoot() {
			roots = append(roots, l)
		}
	}
	return roots
}

// NamedLayers walks every root depth first, parents before children in
// registration order, and returns the non-temporary layers. Temporary
// layers are walked through but not returned.
func (c *Collection) NamedLayers() []*Layer {
	var named []*Layer
	var visit func(l *Layer)
	visit = func(l *Layer) {
		if !l.temporary {
			named = append(named, l)
		}
		for _, child := range l.children {
			visit(child)
		}
	}
	for _, root := range c.Roots() {
		visit(root)
	}
	return named
}
