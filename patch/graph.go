// Package patch implements the front-end of the livecoding language: a
// preprocessor that joins brace-balanced statements, a lexer, and a parser
// that turns source text into an immutable graph of node definitions,
// connections, named routes and patterns. Malformed input never aborts a
// parse; every problem becomes an Error in the result and the remaining
// statements are still processed.
package patch

import "fmt"

// NodeKind enumerates the closed set of instrument and effect types.
type NodeKind int

const (
	KindInvalid NodeKind = iota
	KindSine
	KindSquare
	KindSawtooth
	KindTriangle
	KindSample
	KindGain
	KindDelay
	KindLowpass
	KindHighpass
	KindBandpass
	KindReverb
)

var kindNames = map[NodeKind]string{
	KindSine:     "sine",
	KindSquare:   "square",
	KindSawtooth: "sawtooth",
	KindTriangle: "triangle",
	KindSample:   "sample",
	KindGain:     "gain",
	KindDelay:    "delay",
	KindLowpass:  "lowpass",
	KindHighpass: "highpass",
	KindBandpass: "bandpass",
	KindReverb:   "reverb",
}

func (k NodeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Instrument reports whether nodes of this kind are playable sources,
// i.e. spawn a voice per note instead of processing a continuous signal.
func (k NodeKind) Instrument() bool {
	switch k {
	case KindSine, KindSquare, KindSawtooth, KindTriangle, KindSample:
		return true
	}
	return false
}

// KindOf maps a type name from the source text to its kind.
// Unknown names map to KindInvalid.
func KindOf(name string) NodeKind {
	for k, s := range kindNames {
		if s == name {
			return k
		}
	}
	return KindInvalid
}

// Out is the output sentinel: connections targeting it feed the master
// output. MASTER and STEREO are accepted spellings for the same sink.
const Out = "OUT"

func isOut(name string) bool {
	return name == "OUT" || name == "MASTER" || name == "STEREO"
}

// A Value is a parameter value from a {key=value} block. One of Number,
// String, Bool or Decibel. Decibel keeps the dB-annotated form so that
// conversion to linear gain happens at the point of use, not at parse time.
type Value interface {
	isValue()
}

type Number float64
type String string
type Bool bool
type Decibel float64

func (Number) isValue()  {}
func (String) isValue()  {}
func (Bool) isValue()    {}
func (Decibel) isValue() {}

// NodeDef describes one instrument or effect. Its identity is Name: either
// the user-assigned name of a definition line or an auto-generated
// "type-N" name, unique and deterministic within one parse.
type NodeDef struct {
	Name   string
	Kind   NodeKind
	Params map[string]Value
	Line   int
}

// Param returns the named parameter, or nil when absent.
func (d *NodeDef) Param(key string) Value {
	if d.Params == nil {
		return nil
	}
	return d.Params[key]
}

// A Connection is a directed edge of the signal graph. From and To are node
// names (To may be the Out sentinel). When Param is set the edge feeds the
// named automatable parameter on To instead of its audio input.
type Connection struct {
	From  string
	To    string
	Param string
}

func (c Connection) String() string {
	if c.Param != "" {
		return fmt.Sprintf("%s -> %s.%s", c.From, c.To, c.Param)
	}
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}

// A Route is a named alias for a chain of nodes. FirstNode is the entry used
// when something routes into the route, LastNode the exit used when routing
// out of it. AllNodes is the chain as written, including route names and the
// Out sentinel, for index-based addressing.
type Route struct {
	Name      string
	FirstNode string
	LastNode  string
	AllNodes  []string
}

// A Note is a single pitch: either a MIDI note number or, when Hz is set,
// a literal frequency that bypasses MIDI conversion downstream.
type Note struct {
	Midi int
	Hz   float64
}

// A Token is the sounding payload of one pattern step: a single note or a
// chord, with a shared velocity and trigger probability.
type Token struct {
	Notes       []Note
	Velocity    float64
	Probability float64
}

// An Event is one sounding or rest entry of a pattern. Token is nil for a
// rest. Beats is the sustain in beats; ties have been absorbed into it
// during parsing, so consumers never see tie tokens.
type Event struct {
	Token *Token
	Beats float64
}

// A Slot is one grid step of a pattern loop. Event is the event starting on
// this step, nil for continuation steps created by ties. Beats is the grid
// duration of the step, which can differ between chained segments.
type Slot struct {
	Event *Event
	Beats float64
}

// A Pattern binds a reduced event grid to a target instrument or route.
type Pattern struct {
	Target string
	Slots  []Slot

	// WrapCarryBeats is the duration of leading ties that had no preceding
	// sounding event anywhere in the chain. It extends the last sounding
	// event across the loop boundary and is reported here so it is never
	// silently dropped.
	WrapCarryBeats float64

	Line int
}

// Events returns the pattern's events in grid order.
func (p *Pattern) Events() []Event {
	var evs []Event
	for _, s := range p.Slots {
		if s.Event != nil {
			evs = append(evs, *s.Event)
		}
	}
	return evs
}

// Beats returns the total loop length in beats.
func (p *Pattern) Beats() float64 {
	var sum float64
	for _, s := range p.Slots {
		sum += s.Beats
	}
	return sum
}

// A PatternVar is a named, reusable event grid, referencable from trigger
// lines and chainable with ++.
type PatternVar struct {
	Name           string
	Slots          []Slot
	WrapCarryBeats float64
	Line           int
}

// An Error is a diagnostic tied to a source line. Parsing collects errors
// instead of failing, so a single bad statement never takes down the rest
// of the program.
type Error struct {
	Line int
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Graph is the immutable result of one parse.
type Graph struct {
	Nodes       map[string]*NodeDef
	NodeOrder   []string
	Connections []Connection
	Routes      map[string]*Route
	Patterns    []*Pattern
	PatternVars map[string]*PatternVar
	Errors      []Error
}

func newGraph() *Graph {
	return &Graph{
		Nodes:       make(map[string]*NodeDef),
		Routes:      make(map[string]*Route),
		PatternVars: make(map[string]*PatternVar),
	}
}

func (g *Graph) errorf(line int, format string, args ...interface{}) {
	g.Errors = append(g.Errors, Error{Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (g *Graph) addNode(def *NodeDef) {
	if _, ok := g.Nodes[def.Name]; !ok {
		g.NodeOrder = append(g.NodeOrder, def.Name)
	}
	g.Nodes[def.Name] = def
}

func (g *Graph) connect(from, to, param string) {
	g.Connections = append(g.Connections, Connection{From: from, To: to, Param: param})
}

// ResolveSource resolves a name used as a connection source. Routes resolve
// to their last node, following route-to-route references with a guard set
// that stops cycles and returns the last name seen.
func (g *Graph) ResolveSource(name string) string {
	return g.resolve(name, false, make(map[string]bool))
}

// ResolveTarget resolves a name used as a connection target. Routes resolve
// to their first node.
func (g *Graph) ResolveTarget(name string) string {
	return g.resolve(name, true, make(map[string]bool))
}

func (g *Graph) resolve(name string, entry bool, seen map[string]bool) string {
	route, ok := g.Routes[name]
	if !ok || seen[name] {
		return name
	}
	seen[name] = true
	next := route.LastNode
	if entry {
		next = route.FirstNode
	}
	if next == name || next == "" {
		return name
	}
	return g.resolve(next, entry, seen)
}

// Expand flattens a route chain for index-based addressing: the Out sentinel
// is skipped and nested route names resolve to their first concrete node.
func (g *Graph) Expand(name string) []string {
	route, ok := g.Routes[name]
	if !ok {
		if _, isNode := g.Nodes[name]; isNode {
			return []string{name}
		}
		return nil
	}
	var nodes []string
	for _, n := range route.AllNodes {
		if isOut(n) {
			continue
		}
		if _, isRoute := g.Routes[n]; isRoute && n != name {
			nodes = append(nodes, g.ResolveTarget(n))
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}
