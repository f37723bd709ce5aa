package engine

import (
	"context"
	"log"
	"math"

	"github.com/pckerneis/micro/patch"
)

// Table is the result of building a parsed graph: live nodes by name and
// the routing table mapping playable names to their source instruments.
type Table struct {
	Nodes   map[string]Node
	Sources map[string]Instrument

	outs []Node
}

// Build instantiates one live node per definition, wires every connection
// and installs the result as the backend's live set. It blocks until
// pending sample loads have settled, bounded by ctx. Unknown kinds, bad
// parameter values and dangling references are logged and dropped, never
// fatal: the rest of the graph still builds.
func Build(ctx context.Context, b Backend, g *patch.Graph) (*Table, error) {
	t := &Table{
		Nodes:   make(map[string]Node),
		Sources: make(map[string]Instrument),
	}
	for _, name := range g.NodeOrder {
		def := g.Nodes[name]
		if def.Kind == patch.KindInvalid {
			log.Printf("build: dropping %q: unknown node type", name)
			continue
		}
		node, err := b.Node(def.Kind)
		if err != nil {
			log.Printf("build: %s %q: %v", def.Kind, name, err)
			continue
		}
		for key, val := range def.Params {
			if err := node.Set(key, val); err != nil {
				log.Printf("build: %s %q: %v", def.Kind, name, err)
			}
		}
		t.Nodes[name] = node
	}

	// Modulation sources that are instrument definitions share one
	// free-running oscillator each, created lazily.
	lfos := make(map[string]Node)
	for _, c := range g.Connections {
		t.wire(b, g, c, lfos)
	}
	b.Install(t.outs)

	// Routing table: every instrument node is playable by name, and a
	// route is playable when its entry node is an instrument.
	for name, def := range g.Nodes {
		if !def.Kind.Instrument() {
			continue
		}
		if inst, ok := t.Nodes[name].(Instrument); ok {
			t.Sources[name] = inst
		}
	}
	for name := range g.Routes {
		if _, done := t.Sources[name]; done {
			continue
		}
		entry := g.ResolveTarget(name)
		if def, ok := g.Nodes[entry]; ok && def.Kind.Instrument() {
			if inst, ok := t.Nodes[entry].(Instrument); ok {
				t.Sources[name] = inst
			}
		}
	}
	return t, b.Wait(ctx)
}

func (t *Table) wire(b Backend, g *patch.Graph, c patch.Connection, lfos map[string]Node) {
	from := g.ResolveSource(c.From)
	src, ok := t.Nodes[from]
	if !ok {
		log.Printf("build: dropping %s: unknown source", c)
		return
	}
	if c.To == patch.Out {
		t.outs = append(t.outs, src)
		return
	}
	to := g.ResolveTarget(c.To)
	dst, ok := t.Nodes[to]
	if !ok {
		log.Printf("build: dropping %s: unknown target", c)
		return
	}
	if c.Param == "" {
		dst.AddInput(src)
		return
	}
	mod := src
	if def, ok := g.Nodes[from]; ok && def.Kind.Instrument() {
		lfo, cached := lfos[from]
		if !cached {
			lfo = makeLFO(b, def)
			lfos[from] = lfo
		}
		if lfo == nil {
			log.Printf("build: dropping %s: no modulator", c)
			return
		}
		mod = lfo
	}
	if err := dst.AddMod(c.Param, mod); err != nil {
		log.Printf("build: dropping %s: %v", c, err)
	}
}

// makeLFO derives a continuous modulator from an instrument definition's
// declared frequency and level, falling back to the oscillator defaults.
func makeLFO(b Backend, def *patch.NodeDef) Node {
	freq, level := 440.0, 1.0
	if n, ok := def.Param("frequency").(patch.Number); ok {
		freq = float64(n)
	}
	lv := def.Param("level")
	if lv == nil {
		lv = def.Param("gain")
	}
	switch v := lv.(type) {
	case patch.Number:
		level = float64(v)
	case patch.Decibel:
		level = math.Pow(10, float64(v)/20.0)
	}
	lfo, err := b.LFO(def.Kind, freq, level)
	if err != nil {
		log.Printf("build: modulator %s: %v", def.Kind, err)
		return nil
	}
	return lfo
}
