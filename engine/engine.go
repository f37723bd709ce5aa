package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pckerneis/micro/patch"
)

// Engine ties parsing, graph building and the transport together. All
// methods are safe for concurrent use; the audio callback never sees a
// half-applied graph because Install swaps the source set atomically.
type Engine struct {
	backend   Backend
	transport *Transport

	mu    sync.Mutex
	graph *patch.Graph
	table *Table
}

func New(b Backend) *Engine {
	return &Engine{backend: b, transport: NewTransport(b)}
}

// Parse parses src without building or applying it.
func (e *Engine) Parse(src string) *patch.Graph { return patch.Parse(src) }

// Apply parses src and rebuilds the live graph from it. Playback keeps
// running through the swap: patterns targeting a name that survives the
// rebuild continue from the current transport position. The returned
// graph carries any parse errors; Apply itself only fails when the
// backend cannot realize the graph.
func (e *Engine) Apply(ctx context.Context, src string) (*patch.Graph, error) {
	g := patch.Parse(src)
	t, err := Build(ctx, e.backend, g)
	if err != nil {
		return g, err
	}

	var cursors []*cursor
	for _, p := range g.Patterns {
		if len(p.Slots) == 0 {
			continue
		}
		inst, ok := t.Sources[p.Target]
		if !ok {
			log.Printf("engine: pattern target %q is not playable", p.Target)
			continue
		}
		cursors = append(cursors, newCursor(p, inst))
	}

	e.mu.Lock()
	e.graph = g
	e.table = t
	e.mu.Unlock()
	e.transport.setCursors(cursors)
	return g, nil
}

func (e *Engine) Play() {
	e.transport.Play()
}

// Stop halts the transport and silences every playable source, including
// notes already dispatched into the lookahead window.
func (e *Engine) Stop() {
	e.transport.Stop()
	e.mu.Lock()
	t := e.table
	e.mu.Unlock()
	if t == nil {
		return
	}
	for _, inst := range t.Sources {
		inst.Silence()
	}
}

func (e *Engine) SetBPM(bpm float64) error { return e.transport.SetBPM(bpm) }

// SetParam adjusts one parameter on a live node, addressed by its
// definition name.
func (e *Engine) SetParam(name, param string, v patch.Value) error {
	e.mu.Lock()
	t := e.table
	e.mu.Unlock()
	if t == nil {
		return fmt.Errorf("no live graph")
	}
	node, ok := t.Nodes[name]
	if !ok {
		return fmt.Errorf("unknown node %q", name)
	}
	return node.Set(param, v)
}

func (e *Engine) BPM() float64 { return e.transport.BPM() }

func (e *Engine) Playing() bool { return e.transport.Playing() }

func (e *Engine) Elapsed() float64 { return e.transport.Elapsed() }

// Now reports the backend clock in seconds.
func (e *Engine) Now() float64 { return e.backend.Now() }

// Graph returns the most recently applied graph, nil before the first
// successful Apply.
func (e *Engine) Graph() *patch.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// Routes returns the named routes of the live graph.
func (e *Engine) Routes() map[string]*patch.Route {
	if g := e.Graph(); g != nil {
		return g.Routes
	}
	return nil
}

// Patterns returns the patterns of the live graph.
func (e *Engine) Patterns() []*patch.Pattern {
	if g := e.Graph(); g != nil {
		return g.Patterns
	}
	return nil
}

// Errors returns the diagnostics of the live graph.
func (e *Engine) Errors() []patch.Error {
	if g := e.Graph(); g != nil {
		return g.Errors
	}
	return nil
}
