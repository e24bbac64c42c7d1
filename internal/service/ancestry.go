package service

import (
	"sort"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// ancestryGraph is the proof dependency DAG: symbol id -> ids its proof
// depends on. Not safe for concurrent use; ProofEngine guards it.
type ancestryGraph struct {
	deps map[string][]string
}

func newAncestryGraph() *ancestryGraph {
	return &ancestryGraph{deps: make(map[string][]string)}
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

// cyclePath returns the dependency path that adding from -> deps would
// close, or nil when the edges keep the graph acyclic.
func (a *ancestryGraph) cyclePath(from string, deps []string) []string {
	next := func(n string) []string {
		if n == from {
			return mergeSorted(a.deps[n], deps)
		}
		return a.deps[n]
	}

	color := make(map[string]int)
	var stack []string
	var found []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = colorGrey
		stack = append(stack, n)
		for _, m := range next(n) {
			switch color[m] {
			case colorGrey:
				for i, s := range stack {
					if s == m {
						found = append(append([]string(nil), stack[i:]...), m)
						break
					}
				}
				return true
			case colorWhite:
				if visit(m) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = colorBlack
		return false
	}

	if visit(from) {
		return found
	}
	return nil
}

func (a *ancestryGraph) add(from string, deps []string) {
	if len(deps) == 0 {
		return
	}
	a.deps[from] = mergeSorted(a.deps[from], deps)
}

func (a *ancestryGraph) remove(from string) {
	delete(a.deps, from)
}

// order returns every id reachable from root in dependency order: each id
// appears after everything it depends on, root last.
func (a *ancestryGraph) order(root string) []string {
	visited := make(map[string]bool)
	var out []string
	var visit func(n string)
	visit = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, m := range a.deps[n] {
			visit(m)
		}
		out = append(out, n)
	}
	visit(root)
	return out
}

func (a *ancestryGraph) edges() []domain.AncestryEdge {
	froms := make([]string, 0, len(a.deps))
	for from := range a.deps {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	out := []domain.AncestryEdge{}
	for _, from := range froms {
		for _, to := range a.deps[from] {
			out = append(out, domain.AncestryEdge{From: from, To: to})
		}
	}
	return out
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
