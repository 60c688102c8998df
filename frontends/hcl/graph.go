package hcl

import (
	"fmt"
	"sort"
	"strings"
)

type graphNode struct {
	name         string
	index        int
	dependencies []string
	dependents   []string
}

// graph orders image declarations so that every base comes before the
// images declared on top of it.
type graph struct {
	nodes map[string]*graphNode
}

func newGraph() *graph {
	return &graph{nodes: make(map[string]*graphNode)}
}

// addNode registers a declaration. The insertion index breaks ties in the
// resulting order.
func (g *graph) addNode(name string) {
	if _, exists := g.nodes[name]; exists {
		return
	}
	g.nodes[name] = &graphNode{name: name, index: len(g.nodes)}
}

// addDependency records that from is built on top of to.
func (g *graph) addDependency(from, to string) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("unknown image %q", from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("unknown image %q", to)
	}
	fromNode.dependencies = append(fromNode.dependencies, to)
	toNode.dependents = append(toNode.dependents, from)
	return nil
}

// topologicalSort returns every node, dependencies first. Among the nodes
// that are ready at the same time the one registered first wins, so the
// order is stable for a given description.
func (g *graph) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	var ready []*graphNode
	for _, n := range g.nodes {
		inDegree[n.name] = len(n.dependencies)
		if inDegree[n.name] == 0 {
			ready = append(ready, n)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].index < ready[j].index })
		n := ready[0]
		ready = ready[1:]
		result = append(result, n.name)

		for _, dep := range n.dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, g.nodes[dep])
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("images depend on each other in a cycle: %s", strings.Join(g.cycleMembers(inDegree), ", "))
	}
	return result, nil
}

func (g *graph) cycleMembers(inDegree map[string]int) []string {
	var members []*graphNode
	for name, degree := range inDegree {
		if degree > 0 {
			members = append(members, g.nodes[name])
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].index < members[j].index })

	names := make([]string, len(members))
	for i, n := range members {
		names[i] = n.name
	}
	return names
}
