package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pckerneis/micro/patch"
)

type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(dt float64) {
	c.mu.Lock()
	c.now += dt
	c.mu.Unlock()
}

type playedNote struct {
	when     float64
	freq     float64
	duration float64
	velocity float64
}

// fakeNode records everything done to it. It satisfies Instrument so any
// kind can be played in tests.
type fakeNode struct {
	kind   patch.NodeKind
	params map[string]patch.Value
	inputs []Node
	mods   map[string]Node

	mu       sync.Mutex
	notes    []playedNote
	silenced int
}

func newFakeNode(kind patch.NodeKind) *fakeNode {
	return &fakeNode{
		kind:   kind,
		params: make(map[string]patch.Value),
		mods:   make(map[string]Node),
	}
}

func (n *fakeNode) Set(param string, value patch.Value) error {
	n.params[param] = value
	return nil
}

func (n *fakeNode) AddInput(src Node) {
	n.inputs = append(n.inputs, src)
}

func (n *fakeNode) AddMod(param string, src Node) error {
	n.mods[param] = src
	return nil
}

func (n *fakeNode) PlayNote(when, freq, duration, velocity float64) {
	n.mu.Lock()
	n.notes = append(n.notes, playedNote{when, freq, duration, velocity})
	n.mu.Unlock()
}

func (n *fakeNode) Silence() {
	n.mu.Lock()
	n.silenced++
	n.mu.Unlock()
}

func (n *fakeNode) played() []playedNote {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]playedNote(nil), n.notes...)
}

type fakeBackend struct {
	*fakeClock
	nodes     []*fakeNode
	lfos      []*fakeNode
	installed [][]Node
	broken    map[patch.NodeKind]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fakeClock: &fakeClock{}}
}

func (b *fakeBackend) Node(kind patch.NodeKind) (Node, error) {
	if b.broken[kind] {
		return nil, fmt.Errorf("%s not available", kind)
	}
	n := newFakeNode(kind)
	b.nodes = append(b.nodes, n)
	return n, nil
}

func (b *fakeBackend) LFO(kind patch.NodeKind, freq, level float64) (Node, error) {
	if b.broken[kind] {
		return nil, fmt.Errorf("%s not available", kind)
	}
	n := newFakeNode(kind)
	n.params["frequency"] = patch.Number(freq)
	n.params["level"] = patch.Number(level)
	b.lfos = append(b.lfos, n)
	return n, nil
}

func (b *fakeBackend) Install(sources []Node) {
	b.installed = append(b.installed, sources)
}

func (b *fakeBackend) Wait(ctx context.Context) error { return nil }
