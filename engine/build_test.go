package engine

import (
	"context"
	"math"
	"testing"

	"github.com/pckerneis/micro/patch"
)

func build(t *testing.T, b *fakeBackend, src string) *Table {
	t.Helper()
	g := patch.Parse(src)
	if len(g.Errors) > 0 {
		t.Fatal(g.Errors)
	}
	tbl, err := Build(context.Background(), b, g)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestBuildWiring(t *testing.T) {
	b := newFakeBackend()
	tbl := build(t, b, `
lead = sine{ attack=0.01 }
chain = lowpass{ frequency=800 } -> delay{ time=0.25 }
lead -> chain -> OUT
`)

	lead := tbl.Nodes["lead"].(*fakeNode)
	low := tbl.Nodes["lowpass"].(*fakeNode)
	del := tbl.Nodes["delay"].(*fakeNode)
	if lead.params["attack"] != patch.Number(0.01) {
		t.Errorf("want attack set on lead, got %v", lead.params)
	}
	if low.params["frequency"] != patch.Number(800) {
		t.Errorf("want lowpass frequency 800, got %v", low.params)
	}
	if len(low.inputs) != 1 || low.inputs[0].(*fakeNode) != lead {
		t.Errorf("lead should feed lowpass, got %v", low.inputs)
	}
	if len(del.inputs) != 1 || del.inputs[0].(*fakeNode) != low {
		t.Errorf("lowpass should feed delay, got %v", del.inputs)
	}
	last := b.installed[len(b.installed)-1]
	if len(last) != 1 || last[0].(*fakeNode) != del {
		t.Errorf("want delay as the only installed out, got %v", last)
	}
	if _, ok := tbl.Sources["lead"]; !ok {
		t.Error("lead should be playable")
	}
	if _, ok := tbl.Sources["chain"]; ok {
		t.Error("chain starts with an effect, should not be playable")
	}
}

func TestBuildRouteTable(t *testing.T) {
	b := newFakeBackend()
	tbl := build(t, b, `
lead = sine{}
fx = gain{ level=0.5 }
sub = lead -> fx
fx -> OUT
`)

	if tbl.Sources["sub"] != tbl.Sources["lead"] {
		t.Error("route starting at an instrument should play that instrument")
	}
	if _, ok := tbl.Sources["fx"]; ok {
		t.Error("gain is not playable")
	}
	if want, got := 2, len(tbl.Sources); want != got {
		t.Errorf("want %d playable names, got %d", want, got)
	}
}

func TestBuildSharedModulator(t *testing.T) {
	b := newFakeBackend()
	tbl := build(t, b, `
wob = sine{ frequency=2, level=0.5 }
pad = sawtooth{}
filt = lowpass{ frequency=600 }
pad -> filt -> OUT
wob -> filt.frequency
wob -> filt.resonance
`)

	if want, got := 1, len(b.lfos); want != got {
		t.Fatalf("want %d modulator for two edges, got %d", want, got)
	}
	lfo := b.lfos[0]
	if lfo.params["frequency"] != patch.Number(2) || lfo.params["level"] != patch.Number(0.5) {
		t.Errorf("modulator should inherit declared rate and depth, got %v", lfo.params)
	}
	filt := tbl.Nodes["filt"].(*fakeNode)
	if filt.mods["frequency"].(*fakeNode) != lfo || filt.mods["resonance"].(*fakeNode) != lfo {
		t.Error("both edges should share one modulator")
	}
}

func TestBuildModulatorDecibelLevel(t *testing.T) {
	b := newFakeBackend()
	build(t, b, `
wob = sine{ frequency=5, level=-6dB }
filt = lowpass{}
filt -> OUT
wob -> filt.frequency
`)

	if want, got := 1, len(b.lfos); want != got {
		t.Fatalf("want %d modulator, got %d", want, got)
	}
	if want := patch.Number(math.Pow(10, -6.0/20.0)); b.lfos[0].params["level"] != want {
		t.Errorf("want level %v, got %v", want, b.lfos[0].params["level"])
	}
}

func TestBuildSkipsUnavailableKind(t *testing.T) {
	g := patch.Parse("verb = reverb{}\nlead = sine{}\nlead -> verb -> OUT\n")
	if len(g.Errors) > 0 {
		t.Fatal(g.Errors)
	}
	b := newFakeBackend()
	b.broken = map[patch.NodeKind]bool{patch.KindReverb: true}
	tbl, err := Build(context.Background(), b, g)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Nodes["verb"]; ok {
		t.Error("unavailable kind should be dropped")
	}
	if _, ok := tbl.Nodes["lead"]; !ok {
		t.Error("rest of the graph should still build")
	}
	last := b.installed[len(b.installed)-1]
	if len(last) != 0 {
		t.Errorf("dangling out should be dropped, got %d sources", len(last))
	}
}

func TestBuildInvalidDefinition(t *testing.T) {
	g := patch.Parse("x = blorp{}\nx -> OUT\n")
	if len(g.Errors) == 0 {
		t.Fatal("want a parse error for the unknown type")
	}
	b := newFakeBackend()
	tbl, err := Build(context.Background(), b, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Nodes) != 0 {
		t.Errorf("invalid definition should not build, got %v", tbl.Nodes)
	}
}
