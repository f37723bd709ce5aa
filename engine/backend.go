// Package engine is the back half of the compiler and the transport: it
// turns a parsed patch into live tone-generation nodes, keeps the routing
// table mapping playable names to instruments, and schedules pattern events
// against the audio clock with lookahead.
package engine

import (
	"context"
	"math"

	"github.com/pckerneis/micro/patch"
)

// A Node is one live processing unit owned by the backend.
type Node interface {
	// Set applies one definition parameter. Implementations validate the
	// value and keep their previous setting when it is rejected.
	Set(param string, value patch.Value) error
	// AddInput feeds src's audio output into this node's input.
	AddInput(src Node)
	// AddMod feeds src's control output into the named automatable
	// parameter. Instruments apply modulation per note, standing effects
	// continuously.
	AddMod(param string, src Node) error
}

// An Instrument is a playable node that spawns one voice per note.
type Instrument interface {
	Node
	// PlayNote schedules a voice at an absolute clock time. freq is in Hz,
	// duration in seconds, velocity in the unit range.
	PlayNote(when, freq, duration, velocity float64)
	// Silence force-stops all sounding voices and drops pending notes.
	Silence()
}

// Clock is the audio clock, in seconds.
type Clock interface {
	Now() float64
}

// Backend is the tone-generation backend consumed by the builder and the
// transport. The real implementation lives in the audio package; tests
// substitute a recording fake.
type Backend interface {
	Clock
	// Node constructs a live node for kind. Instrument kinds return nodes
	// satisfying Instrument.
	Node(kind patch.NodeKind) (Node, error)
	// LFO constructs a free-running modulation oscillator from an
	// instrument definition used as a modulation source.
	LFO(kind patch.NodeKind, freq, level float64) (Node, error)
	// Install makes sources the live set feeding the master output,
	// replacing the previous set.
	Install(sources []Node)
	// Wait blocks until pending sample loads have resolved or failed.
	Wait(ctx context.Context) error
}

func midiToFreq(note int) float64 {
	return math.Pow(2, float64(note-69)/12.0) * 440
}

// safeFreq guards playback against non-finite or non-positive frequencies.
func safeFreq(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 440
	}
	return f
}
