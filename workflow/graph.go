// Package workflow provides a checkpointed stage-graph execution engine.
//
// A graph is a set of named stages connected by unconditional edges,
// conditional routers, and dynamic fan-out points. Stages transform a typed
// run state; after every stage the executor persists the state to a
// checkpoint store so a run can be suspended, inspected, and resumed.
package workflow

import (
	"context"
	"fmt"
)

// StageFunc is a unit of work in the graph. It receives the current run
// state and returns the updated state. Stage functions must not retain the
// input value after returning.
type StageFunc[S any] func(ctx context.Context, state S) (S, error)

// RouteFunc decides the next stage after a routed stage. The returned name
// must be one of the router's declared targets; anything else is a
// configuration error that fails the run.
type RouteFunc[S any] func(ctx context.Context, state S) (string, error)

type router[S any] struct {
	targets []string
	decide  RouteFunc[S]
}

func (r *router[S]) allows(name string) bool {
	for _, t := range r.targets {
		if t == name {
			return true
		}
	}
	return false
}

// fanout is the type-erased form of a FanoutSpec. run spawns and executes
// the children and returns the merged state plus the child count; the
// executor picks the next or empty edge based on the count.
type fanout[S any] struct {
	next  string
	empty string
	run   func(ctx context.Context, ex *Executor[S], runID string, state S) (S, int, error)
}

// Graph is a directed graph of named stages over state type S. Construct
// with NewGraph, register stages and edges, then Compile before execution.
type Graph[S any] struct {
	name     string
	entry    string
	stages   map[string]StageFunc[S]
	edges    map[string]string
	routers  map[string]*router[S]
	fanouts  map[string]*fanout[S]
	compiled bool
}

// NewGraph creates an empty graph.
func NewGraph[S any](name string) *Graph[S] {
	return &Graph[S]{
		name:    name,
		stages:  make(map[string]StageFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]*router[S]),
		fanouts: make(map[string]*fanout[S]),
	}
}

// Name returns the graph name.
func (g *Graph[S]) Name() string { return g.name }

// AddStage registers a named stage.
func (g *Graph[S]) AddStage(name string, fn StageFunc[S]) *Graph[S] {
	g.stages[name] = fn
	return g
}

// AddEdge registers the unconditional successor of a stage.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddRouter registers a conditional edge: after from completes, decide picks
// one of targets as the next stage. Targets are validated at Compile time;
// the decision is validated at dispatch time against the declared set.
func (g *Graph[S]) AddRouter(from string, targets []string, decide RouteFunc[S]) *Graph[S] {
	g.routers[from] = &router[S]{targets: targets, decide: decide}
	return g
}

// SetEntry sets the stage a fresh run begins at.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// FanoutSpec declares a dynamic fan-out point over child state type C.
//
// Spawn derives the child seed states from the parent state; each child runs
// Sub to completion on its own goroutine with no shared mutable state
// between siblings. Join merges the completed child states back into the
// parent exactly once, after all children have finished. When Spawn yields
// zero children the engine takes the Empty edge instead of joining.
type FanoutSpec[S, C any] struct {
	Spawn func(state S) []C
	Sub   *Graph[C]
	Join  func(state S, children []C) S
	Next  string
	Empty string
}

// AddFanout registers a fan-out stage on g. It is a package-level function
// because the child state type C is independent of the graph's state type.
func AddFanout[S, C any](g *Graph[S], name string, spec FanoutSpec[S, C]) {
	g.fanouts[name] = &fanout[S]{
		next:  spec.Next,
		empty: spec.Empty,
		run: func(ctx context.Context, ex *Executor[S], runID string, state S) (S, int, error) {
			return runFanout(ctx, ex, runID, name, spec, state)
		},
	}
}

// Compile validates the graph: the entry stage exists, every edge and router
// target names a registered stage or fan-out, every fan-out declares both a
// join successor and an empty-spawn escape edge. Cycles are permitted only
// through router back-edges; the executor's step ceiling bounds them.
func (g *Graph[S]) Compile() error {
	if g.entry == "" {
		return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: entry stage not set", g.name)}
	}
	if !g.hasNode(g.entry) {
		return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: entry stage %q does not exist", g.name, g.entry)}
	}

	for from, to := range g.edges {
		if !g.hasNode(from) {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: edge from unknown stage %q", g.name, from)}
		}
		if !g.hasNode(to) {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: edge %q -> unknown stage %q", g.name, from, to)}
		}
	}

	for from, r := range g.routers {
		if !g.hasNode(from) {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: router on unknown stage %q", g.name, from)}
		}
		if len(r.targets) == 0 {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: router on %q declares no targets", g.name, from)}
		}
		for _, t := range r.targets {
			if !g.hasNode(t) {
				return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: router on %q targets unknown stage %q", g.name, from, t)}
			}
		}
		if _, dup := g.edges[from]; dup {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: stage %q has both an edge and a router", g.name, from)}
		}
	}

	for name, f := range g.fanouts {
		if _, clash := g.stages[name]; clash {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: %q registered as both stage and fan-out", g.name, name)}
		}
		if f.next == "" || !g.hasNode(f.next) {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: fan-out %q has no valid join successor", g.name, name)}
		}
		if f.empty == "" || !g.hasNode(f.empty) {
			return &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: fan-out %q has no valid empty-spawn edge", g.name, name)}
		}
	}

	g.compiled = true
	return nil
}

func (g *Graph[S]) hasNode(name string) bool {
	if _, ok := g.stages[name]; ok {
		return true
	}
	_, ok := g.fanouts[name]
	return ok
}
