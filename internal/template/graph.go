package template

import "sort"

// Graph is the explicit node/edge view of a tenant's template flow.
type Graph struct {
	Nodes []string
	Edges map[string][]string
	// Dangling lists edges whose target is not a known template.
	Dangling map[string][]string
}

// BuildGraph derives the flow graph from button references.
func BuildGraph(templates []Template) Graph {
	g := Graph{Edges: make(map[string][]string), Dangling: make(map[string][]string)}
	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[t.ID] = true
		g.Nodes = append(g.Nodes, t.ID)
	}
	sort.Strings(g.Nodes)
	for _, t := range templates {
		for _, b := range t.Buttons {
			if b.NextTemplateID == nil || *b.NextTemplateID == "" {
				continue
			}
			next := *b.NextTemplateID
			if !known[next] {
				g.Dangling[t.ID] = append(g.Dangling[t.ID], next)
				continue
			}
			g.Edges[t.ID] = append(g.Edges[t.ID], next)
		}
	}
	return g
}

// FindCycle returns one cycle as a node path (first node repeated at the end), or nil.
func (g Graph) FindCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string, len(g.Nodes))

	var cycle []string
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = grey
		for _, next := range g.Edges[n] {
			switch color[next] {
			case grey:
				var path []string
				for cur := n; cur != next; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, next)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = append(path, next)
				return true
			case white:
				parent[next] = n
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, n := range g.Nodes {
		if color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}

// CheckAcyclic reports ErrCycle when the flow graph loops.
// Cycles are legal (quick-reply menus); callers decide whether to enforce this.
func CheckAcyclic(templates []Template) error {
	if BuildGraph(templates).FindCycle() != nil {
		return ErrCycle
	}
	return nil
}
