package audio

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/pckerneis/micro/engine"
	"github.com/pckerneis/micro/patch"
)

const numVoices = 12

type voiceState int

const (
	stateFree voiceState = iota
	stateActive
	stateReleased
)

// oscillator is a polyphonic instrument node for one waveform. Notes
// arrive through the ring as absolute-sample commands; each claims a
// voice with its own phase accumulator and envelope. Audio inputs, if
// any are routed in, pass through and mix with the voices.
type oscillator struct {
	node
	*params

	wave    func(float64) float64
	ring    *noteRing
	voices  [numVoices]*oscVoice
	silence atomic.Bool

	attack  *atomic.Value
	decay   *atomic.Value
	sustain *atomic.Value
	release *atomic.Value
	level   *atomic.Value

	freqMod  *lfo
	levelMod *lfo
}

func newOscillator(kind patch.NodeKind) *oscillator {
	o := &oscillator{
		node:   newNode(),
		params: newParams(),
		wave:   waveform(kind),
		ring:   newNoteRing(64),
	}
	o.attack = o.params.register("attack", setSeconds, patch.Number(0.01))
	o.decay = o.params.register("decay", setSeconds, patch.Number(0.1))
	o.sustain = o.params.register("sustain", setFloat(0, 1), patch.Number(0.7))
	o.release = o.params.register("release", setSeconds, patch.Number(0.3))
	o.level = o.params.register("level", setGain(0, 4), patch.Number(0.5))
	o.params.alias("gain", "level")
	for n := range o.voices {
		o.voices[n] = &oscVoice{fn: o.wave}
	}
	return o
}

func (o *oscillator) AddMod(param string, src engine.Node) error {
	l, err := asModulator(src)
	if err != nil {
		return err
	}
	switch param {
	case "frequency", "detune":
		o.freqMod = l
	case "level", "gain":
		o.levelMod = l
	default:
		return fmt.Errorf("parameter %q is not modulatable", param)
	}
	return nil
}

// PlayNote schedules one voice start at an absolute clock time. Called
// from the transport goroutine only.
func (o *oscillator) PlayNote(when, freq, duration, velocity float64) {
	o.ring.push(noteCmd{
		start:    int64(when * sampleRate),
		frames:   int(duration * sampleRate),
		freq:     freq,
		velocity: velocity,
	})
}

// Silence drops queued notes and fades out every sounding voice.
func (o *oscillator) Silence() {
	o.silence.Store(true)
}

func (o *oscillator) process(at int64, size int) []float64 {
	buf, fresh := o.pull(at, size)
	if !fresh {
		return buf
	}
	if o.silence.CompareAndSwap(true, false) {
		o.ring.drain()
		for _, v := range o.voices {
			v.cut()
		}
	}
	env := envSettings{
		attack:  o.attack.Load().(float64),
		decay:   o.decay.Load().(float64),
		sustain: o.sustain.Load().(float64),
		release: o.release.Load().(float64),
	}
	o.ring.play(at+int64(size), func(cmd noteCmd) {
		o.startVoice(cmd, env)
	})
	gain := o.level.Load().(float64)
	for _, v := range o.voices {
		if v.state == stateFree {
			continue
		}
		v.process(buf, gain)
	}
	return o.commit(buf)
}

func (o *oscillator) startVoice(cmd noteCmd, env envSettings) {
	v := o.freeVoice()
	if v == nil {
		// TODO: steal the oldest released voice instead of dropping
		log.Print("audio: no free voice available")
		return
	}
	freq, level := cmd.freq, cmd.velocity
	if o.freqMod != nil {
		freq += o.freqMod.value(cmd.start)
	}
	if o.levelMod != nil {
		level = core.Clamp(level+o.levelMod.value(cmd.start), 0, 1)
	}
	v.start(freq, level, cmd.frames, env)
}

func (o *oscillator) freeVoice() *oscVoice {
	for _, v := range o.voices {
		if v.state == stateFree {
			return v
		}
	}
	return nil
}

type oscVoice struct {
	fn     func(float64) float64
	phase  float64
	delta  float64
	level  float64
	env    envelope
	frames int
	played int
	state  voiceState
}

func (v *oscVoice) start(freq, level float64, frames int, env envSettings) {
	v.phase = 0
	v.delta = freq * twoPi / sampleRate
	v.level = level
	v.frames = frames
	v.played = 0
	v.env.startAttack(env)
	v.state = stateActive
}

func (v *oscVoice) process(buf []float64, gain float64) {
	for n := range buf {
		buf[n] += v.fn(v.phase) * v.env.value() * v.level * gain
		v.phase += v.delta
		if v.phase >= twoPi {
			v.phase -= twoPi
		}
	}
	v.played += len(buf)
	if v.state == stateActive && v.played >= v.frames {
		v.state = stateReleased
		v.env.startRelease()
	}
	if v.state == stateReleased && v.env.idle() {
		v.state = stateFree
	}
}

// cut hurries a sounding voice out with a short release.
func (v *oscVoice) cut() {
	if v.state == stateFree {
		return
	}
	v.env.release = 0.005
	v.env.startRelease()
	v.state = stateReleased
}
