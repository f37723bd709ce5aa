package patch

import (
	"errors"
	"fmt"
	"strconv"
)

// Parse compiles source text into a Graph. It never fails: every problem in
// the input becomes an entry in the returned graph's Errors and the
// remaining statements are still processed.
//
// Statements are handled in passes so that later constructs can reference
// earlier tables: node and route definitions first, then standalone routing
// lines, then pattern variables (collected before evaluation so they may
// reference each other in any order), then triggers.
func Parse(src string) *Graph {
	g := newGraph()
	stmts, errs := preprocess(src)
	g.Errors = append(g.Errors, errs...)

	var defs, routings, trigs []lexedStmt
	vars := &varResolver{g: g, names: &namer{}, decls: make(map[string]*varDecl), failed: make(map[string]bool), visiting: make(map[string]bool)}

	for _, s := range stmts {
		tokens, err := lex(s.text)
		if err != nil {
			g.errorf(s.line, "%v", err)
			continue
		}
		ls := lexedStmt{tokens: tokens, line: s.line}
		switch classify(tokens) {
		case stmtTrigger:
			trigs = append(trigs, ls)
		case stmtPatternVar:
			vars.declare(ls)
		case stmtDefinition:
			defs = append(defs, ls)
		case stmtRouting:
			routings = append(routings, ls)
		default:
			g.errorf(s.line, "cannot make sense of statement")
		}
	}

	for _, ls := range defs {
		p := &parser{tokens: ls.tokens, line: ls.line, g: g, names: vars.names}
		if err := p.definition(); err != nil {
			g.errorf(ls.line, "%v", err)
		}
	}
	for _, ls := range routings {
		p := &parser{tokens: ls.tokens, line: ls.line, g: g, names: vars.names}
		if err := p.routing(); err != nil {
			g.errorf(ls.line, "%v", err)
		}
	}
	vars.resolveAll()
	for _, ls := range trigs {
		p := &parser{tokens: ls.tokens, line: ls.line, g: g, names: vars.names}
		if err := p.trigger(vars); err != nil {
			g.errorf(ls.line, "%v", err)
		}
	}
	return g
}

type lexedStmt struct {
	tokens []token
	line   int
}

type stmtKind int

const (
	stmtUnknown stmtKind = iota
	stmtDefinition
	stmtRouting
	stmtPatternVar
	stmtTrigger
)

// classify decides which pass a statement belongs to. A leading @ marks a
// trigger. A top-level = marks a definition, or a pattern variable when the
// right-hand side opens a sequence or chains with ++. A bare -> line is
// standalone routing.
func classify(tokens []token) stmtKind {
	if len(tokens) > 0 && tokens[0].typ == typeAt {
		return stmtTrigger
	}
	depth, assign, arrow := 0, -1, false
	for i, t := range tokens {
		switch t.typ {
		case typeLeftBrace:
			depth++
		case typeRightBrace:
			depth--
		case typeAssign:
			if depth == 0 && assign < 0 {
				assign = i
			}
		case typeArrow:
			if depth == 0 {
				arrow = true
			}
		}
	}
	if assign >= 0 {
		rest := tokens[assign+1:]
		if len(rest) > 0 && rest[0].typ == typeLeftBracket {
			return stmtPatternVar
		}
		depth = 0
		for _, t := range rest {
			switch t.typ {
			case typeLeftBrace:
				depth++
			case typeRightBrace:
				depth--
			case typeChain:
				if depth == 0 {
					return stmtPatternVar
				}
			}
		}
		return stmtDefinition
	}
	if arrow {
		return stmtRouting
	}
	return stmtUnknown
}

// namer hands out deterministic names for inline node expressions: the
// first node of a kind takes the bare type name, later ones get type-2,
// type-3 and so on. Names already taken by user definitions are skipped.
type namer struct {
	counts map[NodeKind]int
}

func (n *namer) next(g *Graph, kind NodeKind) string {
	if n.counts == nil {
		n.counts = make(map[NodeKind]int)
	}
	for {
		n.counts[kind]++
		name := kind.String()
		if n.counts[kind] > 1 {
			name = fmt.Sprintf("%s-%d", kind, n.counts[kind])
		}
		if _, taken := g.Nodes[name]; taken {
			continue
		}
		if _, taken := g.Routes[name]; taken {
			continue
		}
		return name
	}
}

type parser struct {
	pos    int
	tokens []token
	line   int
	g      *Graph
	names  *namer
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) peek() token {
	t := p.next()
	p.pos--
	return t
}

func (p *parser) backup() {
	p.pos--
}

func unexpected(t token) error {
	if t.typ == typeEOF {
		return errors.New("unexpected end of statement")
	}
	return fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
}

// A segment is one ->-separated element of a chain: an inline node
// expression (def set, name assigned on registration), the output sentinel,
// or a reference with optional [index] and .param suffixes.
type segment struct {
	def   *NodeDef
	name  string
	index int
	param string
}

func (s segment) isOut() bool {
	return s.def == nil && isOut(s.name)
}

func (p *parser) segments() ([]segment, error) {
	var segs []segment
	for {
		seg, err := p.segment()
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		t := p.next()
		if t.typ == typeEOF {
			return segs, nil
		}
		if t.typ != typeArrow {
			return nil, unexpected(t)
		}
	}
}

func (p *parser) segment() (segment, error) {
	t := p.next()
	if t.typ != typeIdent {
		return segment{}, unexpected(t)
	}
	if isOut(t.text) {
		return segment{name: Out, index: -1}, nil
	}
	if p.peek().typ == typeLeftBrace {
		return p.inlineNode(t.text)
	}
	p.backup()
	return p.ref()
}

// ref parses a reference expression: IDENT ([INT])? (.IDENT)?
func (p *parser) ref() (segment, error) {
	t := p.next()
	if t.typ != typeIdent {
		return segment{}, unexpected(t)
	}
	s := segment{name: t.text, index: -1}
	if p.peek().typ == typeLeftBracket {
		p.next()
		it := p.next()
		if it.typ != typeInt {
			return s, unexpected(it)
		}
		i, err := strconv.Atoi(it.text)
		if err != nil {
			return s, err
		}
		if rt := p.next(); rt.typ != typeRightBracket {
			return s, unexpected(rt)
		}
		s.index = i
	}
	if p.peek().typ == typeDot {
		p.next()
		pt := p.next()
		if pt.typ != typeIdent {
			return s, unexpected(pt)
		}
		s.param = pt.text
	}
	return s, nil
}

// inlineNode parses type{key=value,...}. An unknown type name is reported
// and the node kept with an invalid kind, so the builder can drop it while
// the rest of the chain still parses.
func (p *parser) inlineNode(typeName string) (segment, error) {
	kind := KindOf(typeName)
	if kind == KindInvalid {
		p.g.errorf(p.line, "unknown node type %q", typeName)
	}
	def := &NodeDef{Kind: kind, Params: make(map[string]Value), Line: p.line}
	p.next() // consume '{'
	if p.peek().typ == typeRightBrace {
		p.next()
		return segment{def: def, index: -1}, nil
	}
	for {
		kt := p.next()
		if kt.typ != typeIdent {
			return segment{}, unexpected(kt)
		}
		if at := p.next(); at.typ != typeAssign {
			return segment{}, unexpected(at)
		}
		val, err := p.value()
		if err != nil {
			return segment{}, err
		}
		def.Params[kt.text] = val
		t := p.next()
		if t.typ == typeRightBrace {
			return segment{def: def, index: -1}, nil
		}
		if t.typ != typeComma {
			return segment{}, unexpected(t)
		}
	}
}

func (p *parser) value() (Value, error) {
	t := p.next()
	switch t.typ {
	case typeInt, typeFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		return Number(f), err
	case typeFreq:
		f, err := strconv.ParseFloat(t.text[:len(t.text)-2], 64)
		return Number(f), err
	case typeDB:
		f, err := strconv.ParseFloat(t.text[:len(t.text)-2], 64)
		return Decibel(f), err
	case typeString:
		return String(t.text[1 : len(t.text)-1]), nil
	case typeIdent:
		switch t.text {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, fmt.Errorf("invalid parameter value %q", t.text)
	}
	return nil, unexpected(t)
}

// resolveSegment resolves a reference segment to a concrete endpoint name.
// Routes resolve to their entry node when used as a target and their exit
// node when used as a source. An indexed reference picks from the route's
// expanded chain; out of range degrades to the last node with a diagnostic.
// Unknown names pass through unchanged so forward references and builder
// fallbacks still work; report controls whether they are diagnosed here.
func (p *parser) resolveSegment(s segment, target, report bool) string {
	if s.index >= 0 {
		nodes := p.g.Expand(s.name)
		if len(nodes) == 0 {
			if report {
				p.g.errorf(p.line, "unknown name %q", s.name)
			}
			return s.name
		}
		i := s.index
		if i >= len(nodes) {
			p.g.errorf(p.line, "index %d out of range for %q", i, s.name)
			i = len(nodes) - 1
		}
		return nodes[i]
	}
	var resolved string
	if target {
		resolved = p.g.ResolveTarget(s.name)
	} else {
		resolved = p.g.ResolveSource(s.name)
	}
	if report && !p.g.known(resolved) {
		p.g.errorf(p.line, "unknown name %q", s.name)
	}
	return resolved
}

func (g *Graph) known(name string) bool {
	if isOut(name) {
		return true
	}
	if _, ok := g.Nodes[name]; ok {
		return true
	}
	_, ok := g.Routes[name]
	return ok
}

func validateChain(segs []segment) error {
	for i, s := range segs {
		if s.isOut() {
			if i == 0 {
				return errors.New("cannot route from OUT")
			}
			if i != len(segs)-1 {
				return errors.New("OUT must end a chain")
			}
			if s.param != "" {
				return errors.New("OUT has no parameters")
			}
		}
		if i == 0 && s.param != "" {
			return fmt.Errorf("cannot connect from parameter %q", s.param)
		}
	}
	return nil
}

// link walks a validated segment chain: inline nodes are registered (auto
// named unless pre-assigned), and each adjacent pair records a connection.
// A .param segment records a modulation edge only and never becomes the
// chain's current node, so routing continues from the node before it.
// cur feeds the first segment and is empty when the chain opens the
// statement. Returns the chain's entry node, exit node and as-written
// node list.
func (p *parser) link(segs []segment, cur string, report bool) (first, last string, all []string) {
	last = cur
	for _, s := range segs {
		if s.isOut() {
			p.g.connect(cur, Out, "")
			all = append(all, Out)
			continue
		}
		var entry, exit, written string
		switch {
		case s.def != nil:
			if s.def.Name == "" {
				s.def.Name = p.names.next(p.g, s.def.Kind)
			}
			p.g.addNode(s.def)
			entry, exit, written = s.def.Name, s.def.Name, s.def.Name
		default:
			entry = p.resolveSegment(s, true, report)
			if s.param != "" {
				p.g.connect(cur, entry, s.param)
				continue
			}
			if s.index >= 0 {
				exit, written = entry, entry
			} else {
				exit, written = p.resolveSegment(s, false, report), s.name
			}
		}
		if cur != "" {
			p.g.connect(cur, entry, "")
		}
		if first == "" {
			first = entry
		}
		cur, last = exit, exit
		all = append(all, written)
	}
	return first, last, all
}

// definition parses name = segment (-> segment)*. A single inline node
// takes the assigned name itself; in longer chains inline nodes are auto
// named and the assigned name belongs to the route alone. Every definition
// registers a route so the name is addressable and indexable.
func (p *parser) definition() error {
	t := p.next()
	if t.typ != typeIdent || isOut(t.text) {
		return unexpected(t)
	}
	name := t.text
	if at := p.next(); at.typ != typeAssign {
		return unexpected(at)
	}
	segs, err := p.segments()
	if err != nil {
		return err
	}
	if err := validateChain(segs); err != nil {
		return err
	}
	if len(segs) == 1 && segs[0].def != nil {
		segs[0].def.Name = name
	}
	first, last, all := p.link(segs, "", false)
	if first == "" {
		return errors.New("empty definition")
	}
	if _, taken := p.g.Routes[name]; taken {
		p.g.errorf(p.line, "redefinition of %q", name)
	}
	p.g.Routes[name] = &Route{Name: name, FirstNode: first, LastNode: last, AllNodes: all}
	return nil
}

// routing parses a standalone chain: ref (-> segment)+. The leading
// reference must already exist; the rest follows definition chain rules.
func (p *parser) routing() error {
	segs, err := p.segments()
	if err != nil {
		return err
	}
	if err := validateChain(segs); err != nil {
		return err
	}
	if len(segs) < 2 {
		return errors.New("incomplete routing")
	}
	lead := segs[0]
	if lead.def != nil {
		return errors.New("routing must start from a defined name")
	}
	if !p.g.known(lead.name) {
		return fmt.Errorf("unknown name %q", lead.name)
	}
	cur := p.resolveSegment(lead, false, true)
	p.link(segs[1:], cur, true)
	return nil
}

// trigger parses @target followed by a pattern expression or variable
// reference and binds the assembled grid to the target.
func (p *parser) trigger(vars *varResolver) error {
	if t := p.next(); t.typ != typeAt {
		return unexpected(t)
	}
	t := p.next()
	if t.typ != typeIdent {
		return unexpected(t)
	}
	target := t.text
	if isOut(target) || !p.g.known(target) {
		p.g.errorf(p.line, "unknown pattern target %q", target)
		return nil
	}
	c, err := p.patternExpr(vars)
	if err != nil {
		return err
	}
	slots, carry := c.finish()
	if len(slots) == 0 {
		return errors.New("empty pattern")
	}
	p.g.Patterns = append(p.g.Patterns, &Pattern{Target: target, Slots: slots, WrapCarryBeats: carry, Line: p.line})
	return nil
}

// patternExpr parses bracketed sequences and pattern variable references
// chained with ++ into one accumulated grid.
func (p *parser) patternExpr(vars *varResolver) (*chain, error) {
	c := &chain{}
	for {
		t := p.next()
		switch t.typ {
		case typeLeftBracket:
			slots, carry, err := p.sequence()
			if err != nil {
				return nil, err
			}
			c.add(slots, carry)
		case typeIdent:
			v := vars.resolve(t.text)
			if v == nil {
				return nil, fmt.Errorf("unknown pattern %q", t.text)
			}
			c.add(copySlots(v.Slots), v.WrapCarryBeats)
		default:
			return nil, unexpected(t)
		}
		t = p.next()
		if t.typ == typeEOF {
			return c, nil
		}
		if t.typ != typeChain {
			return nil, unexpected(t)
		}
	}
}

// sequence parses one bracketed note list plus its optional step duration
// and reduces it to grid slots.
func (p *parser) sequence() ([]Slot, float64, error) {
	var steps []step
	for {
		t := p.next()
		switch t.typ {
		case typeRightBracket:
			beats, err := p.duration()
			if err != nil {
				return nil, 0, err
			}
			slots, carry := makeEvents(steps, beats)
			return slots, carry, nil
		case typeTie:
			steps = append(steps, step{kind: stepTie})
		case typeRest:
			steps = append(steps, step{kind: stepRest})
		case typeInt, typeFreq:
			tok, err := p.noteToken(t)
			if err != nil {
				return nil, 0, err
			}
			steps = append(steps, step{kind: stepNote, tok: tok})
		case typeLeftParen:
			tok, err := p.chord()
			if err != nil {
				return nil, 0, err
			}
			steps = append(steps, step{kind: stepNote, tok: tok})
		case typeEOF:
			return nil, 0, errors.New("unterminated sequence")
		default:
			return nil, 0, unexpected(t)
		}
	}
}

func parseNote(t token) (Note, error) {
	if t.typ == typeFreq {
		f, err := strconv.ParseFloat(t.text[:len(t.text)-2], 64)
		return Note{Hz: f}, err
	}
	n, err := strconv.Atoi(t.text)
	return Note{Midi: n}, err
}

func (p *parser) noteToken(t token) (*Token, error) {
	n, err := parseNote(t)
	if err != nil {
		return nil, err
	}
	tok := &Token{Notes: []Note{n}, Velocity: 1, Probability: 1}
	if err := p.modifiers(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (p *parser) chord() (*Token, error) {
	tok := &Token{Velocity: 1, Probability: 1}
	for {
		t := p.next()
		switch t.typ {
		case typeRightParen:
			if len(tok.Notes) == 0 {
				return nil, errors.New("empty chord")
			}
			if err := p.modifiers(tok); err != nil {
				return nil, err
			}
			return tok, nil
		case typeInt, typeFreq:
			n, err := parseNote(t)
			if err != nil {
				return nil, err
			}
			tok.Notes = append(tok.Notes, n)
		case typeEOF:
			return nil, errors.New("unterminated chord")
		default:
			return nil, unexpected(t)
		}
	}
}

// modifiers parses optional @velocity and ?probability suffixes, both in
// the unit range.
func (p *parser) modifiers(tok *Token) error {
	for {
		switch t := p.peek(); t.typ {
		case typeAt:
			p.next()
			v, err := p.number()
			if err != nil {
				return err
			}
			tok.Velocity = clamp01(v)
		case typeQuery:
			p.next()
			v, err := p.number()
			if err != nil {
				return err
			}
			tok.Probability = clamp01(v)
		default:
			return nil
		}
	}
}

func (p *parser) number() (float64, error) {
	t := p.next()
	if t.typ != typeInt && t.typ != typeFloat {
		return 0, unexpected(t)
	}
	return strconv.ParseFloat(t.text, 64)
}

const beatsPerWhole = 4

// duration parses the optional step length after a sequence, a fraction of
// a whole note such as 1/8 or 0.125, defaulting to a sixteenth.
func (p *parser) duration() (float64, error) {
	t := p.peek()
	if t.typ != typeInt && t.typ != typeFloat {
		return beatsPerWhole / 16.0, nil
	}
	p.next()
	num, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, err
	}
	dur := beatsPerWhole * num
	if p.peek().typ == typeSlash {
		p.next()
		dt := p.next()
		if dt.typ != typeInt {
			return 0, unexpected(dt)
		}
		den, err := strconv.ParseFloat(dt.text, 64)
		if err != nil {
			return 0, err
		}
		if den <= 0 {
			return 0, errors.New("invalid duration")
		}
		dur /= den
	}
	if dur <= 0 {
		return 0, errors.New("invalid duration")
	}
	return dur, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// A varDecl is an unevaluated pattern variable binding, collected before
// any evaluation so variables may reference each other in either order.
type varDecl struct {
	name   string
	tokens []token
	line   int
}

type varResolver struct {
	g        *Graph
	names    *namer
	order    []string
	decls    map[string]*varDecl
	failed   map[string]bool
	visiting map[string]bool
}

func (r *varResolver) declare(ls lexedStmt) {
	if len(ls.tokens) < 3 || ls.tokens[0].typ != typeIdent || ls.tokens[1].typ != typeAssign {
		r.g.errorf(ls.line, "malformed pattern definition")
		return
	}
	name := ls.tokens[0].text
	if _, dup := r.decls[name]; dup {
		r.g.errorf(ls.line, "redefinition of pattern %q", name)
	} else {
		r.order = append(r.order, name)
	}
	r.decls[name] = &varDecl{name: name, tokens: ls.tokens[2:], line: ls.line}
}

func (r *varResolver) resolveAll() {
	for _, name := range r.order {
		r.resolve(name)
	}
}

// resolve evaluates a pattern variable on first use, memoized. A variable
// that ends up referencing itself is reported and dropped.
func (r *varResolver) resolve(name string) *PatternVar {
	if v, ok := r.g.PatternVars[name]; ok {
		return v
	}
	decl, ok := r.decls[name]
	if !ok || r.failed[name] {
		return nil
	}
	if r.visiting[name] {
		r.g.errorf(decl.line, "pattern %q references itself", name)
		r.failed[name] = true
		return nil
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	p := &parser{tokens: decl.tokens, line: decl.line, g: r.g, names: r.names}
	c, err := p.patternExpr(r)
	if err != nil {
		r.g.errorf(decl.line, "%v", err)
		r.failed[name] = true
		return nil
	}
	v := &PatternVar{Name: name, Slots: c.slots, WrapCarryBeats: c.carry, Line: decl.line}
	r.g.PatternVars[name] = v
	return v
}
