package audio

import (
	"fmt"
	"log"
	"math"

	"github.com/pckerneis/micro/engine"
	"github.com/pckerneis/micro/patch"
)

const twoPi = 2 * math.Pi

// renderer is a live node able to produce audio. process returns the
// node's output for the block starting at the absolute sample at; calling
// it again for the same block returns the memoized buffer.
type renderer interface {
	process(at int64, size int) []float64
}

// node is the shared part of every render node: its audio inputs and the
// per-block double buffer behind the memo. While a block is being built,
// re-entrant pulls (fan-out, or a cycle in the user graph) are answered
// with the previous completed block, so feedback loops degrade to a
// one-block delay instead of recursing forever.
type node struct {
	inputs []renderer
	out    []float64
	work   []float64
	done   int64
}

func (n *node) AddInput(src engine.Node) {
	if r, ok := src.(renderer); ok {
		n.inputs = append(n.inputs, r)
	} else {
		log.Printf("audio: input %T cannot render", src)
	}
}

// pull starts the block at sample at, returning a scratch buffer holding
// the sum of all inputs and fresh=true. If the block was already started
// it returns the last completed buffer and fresh=false; the caller must
// return that buffer untouched.
func (n *node) pull(at int64, size int) (buf []float64, fresh bool) {
	if n.done == at {
		return n.out[:min(size, len(n.out))], false
	}
	n.done = at
	if len(n.work) < size {
		n.work = make([]float64, size)
		n.out = append(n.out, make([]float64, size-len(n.out))...)
	}
	buf = n.work[:size]
	for i := range buf {
		buf[i] = 0
	}
	for _, in := range n.inputs {
		blk := in.process(at, size)
		for i, v := range blk {
			buf[i] += v
		}
	}
	return buf, true
}

// commit publishes the finished block as the node's output.
func (n *node) commit(buf []float64) []float64 {
	n.out, n.work = buf, n.out
	return buf
}

func newNode() node {
	return node{done: -1}
}

// waveform returns the phase-to-amplitude function for an oscillator
// kind. Phase is in radians, [0, 2π).
func waveform(kind patch.NodeKind) func(float64) float64 {
	switch kind {
	case patch.KindSquare:
		return func(phase float64) float64 {
			if phase < math.Pi {
				return 1
			}
			return -1
		}
	case patch.KindSawtooth:
		return func(phase float64) float64 {
			return 2*phase/twoPi - 1
		}
	case patch.KindTriangle:
		return func(phase float64) float64 {
			if phase < math.Pi {
				return 2*phase/math.Pi - 1
			}
			return 3 - 2*phase/math.Pi
		}
	default:
		return math.Sin
	}
}

// lfo is a free-running control oscillator. Its output is a pure function
// of the sample clock, so per-note capture at a voice's start sample and
// per-block evaluation on an effect read the same signal.
type lfo struct {
	fn    func(float64) float64
	freq  float64
	level float64
}

func newLFO(kind patch.NodeKind, freq, level float64) (*lfo, error) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return nil, fmt.Errorf("modulator frequency out of range: %v", freq)
	}
	return &lfo{fn: waveform(kind), freq: freq, level: level}, nil
}

// value returns the modulation amount at an absolute sample.
func (l *lfo) value(at int64) float64 {
	_, phase := math.Modf(l.freq * float64(at) / sampleRate)
	return l.fn(phase*twoPi) * l.level
}

func (l *lfo) Set(param string, v patch.Value) error {
	return fmt.Errorf("modulators have no settable parameters")
}

func (l *lfo) AddInput(src engine.Node) {}

func (l *lfo) AddMod(param string, src engine.Node) error {
	return fmt.Errorf("cannot modulate a modulator")
}

// asModulator rejects modulation sources that have no closed-form value,
// which keeps the render graph free of hidden pull edges.
func asModulator(src engine.Node) (*lfo, error) {
	l, ok := src.(*lfo)
	if !ok {
		return nil, fmt.Errorf("%T cannot modulate a parameter", src)
	}
	return l, nil
}

// midiHz converts a MIDI note number to its equal-tempered frequency.
func midiHz(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}
