package pipeline

import (
	"fmt"
)

// Graph is an ordered set of stages with declared dependencies.
type Graph struct {
	stages []*Stage
	byName map[string]*Stage
}

// NewGraph validates names, dependency references and acyclicity.
func NewGraph(stages []*Stage) (*Graph, error) {

	byName := make(map[string]*Stage, len(stages))
	for _, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if _, dup := byName[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", st.Name)
		}
		byName[st.Name] = st
	}

	for _, st := range stages {
		for _, dep := range st.Deps {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", st.Name, dep)
			}
		}
	}

	g := &Graph{stages: stages, byName: byName}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic runs a colored depth-first walk over the dependency edges.
func (g *Graph) checkAcyclic() error {

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.stages))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case grey:
			return fmt.Errorf("dependency cycle through stage %q", name)
		case black:
			return nil
		}
		color[name] = grey
		for _, dep := range g.byName[name].Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, st := range g.stages {
		if err := visit(st.Name); err != nil {
			return err
		}
	}
	return nil
}

// Stages returns the stages in declaration order.
func (g *Graph) Stages() []*Stage {
	return g.stages
}

// Lookup fetches a stage by name.
func (g *Graph) Lookup(name string) (*Stage, bool) {
	st, ok := g.byName[name]
	return st, ok
}
