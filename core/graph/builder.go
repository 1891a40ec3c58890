package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Builder constructs a validated Graph using a fluent API. Steps and edges
// are added incrementally; Build reports every structural problem at once.
//
// The builder enforces:
//   - step names are unique, non-empty, and never the End sentinel
//   - every step has exactly one outgoing edge (fixed or conditional)
//   - every edge target is a declared step or End
//   - every step is reachable from the entry step
//   - conditional edges declare a non-empty target set
//
// Cycles through conditional edges are legal (retry loops route backwards);
// the step budget bounds them at run time. An unconditional self-loop can
// never terminate and is rejected at build time.
//
// Example:
//
//	g, err := graph.NewBuilder(schema).
//	    AddStep("collect_places", collectPlaces).
//	    AddStep("generate", generate).
//	    AddConditionalEdge("collect_places", routeAfterCollect, "generate", graph.End).
//	    AddEdge("generate", graph.End).
//	    SetEntry("collect_places").
//	    Build()
type Builder struct {
	schema      *Schema
	config      *graphConfig
	steps       map[StepName]*step
	stepOrder   []StepName
	outgoing    map[StepName]*edge
	entry       StepName
	buildErrors []error
}

// NewBuilder creates a Builder for graphs over the given state schema.
// Graph-level options (WithLogger, WithMaxSteps, WithCheckpoints, ...) are
// applied here.
func NewBuilder(schema *Schema, opts ...Option) *Builder {
	config := &graphConfig{
		maxSteps: defaultMaxSteps,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.logger == nil {
		config.logger = slog.Default()
	}

	return &Builder{
		schema:    schema,
		config:    config,
		steps:     make(map[StepName]*step),
		stepOrder: make([]StepName, 0),
		outgoing:  make(map[StepName]*edge),
	}
}

// AddStep registers a step under a unique name. Problems are recorded and
// reported together at Build time.
func (b *Builder) AddStep(name StepName, fn StepFunc) *Builder {
	if name == "" {
		b.buildErrors = append(b.buildErrors, errors.New("step name must not be empty"))
		return b
	}

	if name == End {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("step name %q is reserved", End))
		return b
	}

	if fn == nil {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("step %q has a nil function", name))
		return b
	}

	if _, exists := b.steps[name]; exists {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("duplicate step %q", name))
		return b
	}

	b.steps[name] = &step{name: name, fn: fn}
	b.stepOrder = append(b.stepOrder, name)

	return b
}

// AddEdge sets the fixed next step for from. Route a terminal step to End
// explicitly.
func (b *Builder) AddEdge(from, to StepName) *Builder {
	if from == to {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("step %q routes unconditionally to itself and can never finish", from))
		return b
	}

	b.setOutgoing(&edge{from: from, to: to, targets: []StepName{to}})
	return b
}

// AddConditionalEdge routes from through router after each of its runs. The
// router must return one of the declared targets; anything else aborts the
// run with a ConfigError. Declaring the full target set up front lets Build
// verify every reachable route before anything runs.
func (b *Builder) AddConditionalEdge(from StepName, router Router, targets ...StepName) *Builder {
	if router == nil {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("conditional edge from %q has a nil router", from))
		return b
	}

	if len(targets) == 0 {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("conditional edge from %q declares no targets", from))
		return b
	}

	b.setOutgoing(&edge{from: from, router: router, targets: targets})
	return b
}

// SetEntry declares the step a run starts from.
func (b *Builder) SetEntry(name StepName) *Builder {
	b.entry = name
	return b
}

func (b *Builder) setOutgoing(e *edge) {
	if e.from == "" {
		b.buildErrors = append(b.buildErrors, errors.New("edge source must not be empty"))
		return
	}

	if e.from == End {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("%q cannot have outgoing edges", End))
		return
	}

	if _, exists := b.outgoing[e.from]; exists {
		b.buildErrors = append(b.buildErrors, fmt.Errorf("step %q already has an outgoing edge", e.from))
		return
	}

	b.outgoing[e.from] = e
}

// Build validates the accumulated structure and returns an executable
// Graph. All problems found are joined into a single error.
func (b *Builder) Build() (*Graph, error) {
	buildErrors := append([]error(nil), b.buildErrors...)

	if err := b.schema.Err(); err != nil {
		buildErrors = append(buildErrors, err)
	}

	if len(b.steps) == 0 {
		buildErrors = append(buildErrors, errors.New("graph must contain at least one step"))
	}

	if b.entry == "" {
		buildErrors = append(buildErrors, errors.New("entry step not set"))
	} else if _, exists := b.steps[b.entry]; !exists {
		buildErrors = append(buildErrors, fmt.Errorf("entry step %q is not declared", b.entry))
	}

	buildErrors = append(buildErrors, b.validateEdges()...)
	buildErrors = append(buildErrors, b.validateReachability()...)

	if len(buildErrors) > 0 {
		return nil, &ConfigError{Reason: errors.Join(buildErrors...).Error()}
	}

	return &Graph{
		schema:   b.schema,
		steps:    b.steps,
		outgoing: b.outgoing,
		entry:    b.entry,
		config:   b.config,
	}, nil
}

// validateEdges checks that every edge endpoint and every declared router
// target is a known step or End, and that no step is left without a route.
func (b *Builder) validateEdges() []error {
	var errs []error

	for _, e := range b.outgoing {
		if _, exists := b.steps[e.from]; !exists {
			errs = append(errs, fmt.Errorf("edge leaves undeclared step %q", e.from))
		}
		for _, target := range e.targets {
			if target == End {
				continue
			}
			if _, exists := b.steps[target]; !exists {
				errs = append(errs, fmt.Errorf("edge from %q targets undeclared step %q", e.from, target))
			}
		}
	}

	for _, name := range b.stepOrder {
		if _, exists := b.outgoing[name]; !exists {
			errs = append(errs, fmt.Errorf("step %q has no outgoing edge; route it to End explicitly", name))
		}
	}

	return errs
}

// validateReachability walks the edge targets from the entry step and
// reports every step the walk cannot reach.
func (b *Builder) validateReachability() []error {
	if b.entry == "" {
		return nil
	}
	if _, exists := b.steps[b.entry]; !exists {
		return nil
	}

	visited := make(map[StepName]bool, len(b.steps))
	frontier := []StepName{b.entry}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		if visited[current] || current == End {
			continue
		}
		visited[current] = true

		if e, exists := b.outgoing[current]; exists {
			frontier = append(frontier, e.targets...)
		}
	}

	var unreachable []string
	for _, name := range b.stepOrder {
		if !visited[name] {
			unreachable = append(unreachable, string(name))
		}
	}

	if len(unreachable) == 0 {
		return nil
	}

	sort.Strings(unreachable)
	return []error{fmt.Errorf("steps not reachable from entry %q: %v", b.entry, unreachable)}
}
