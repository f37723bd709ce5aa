package audio

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/pckerneis/micro/engine"
	"github.com/pckerneis/micro/patch"
)

// gain scales its inputs by a linear level, settable in dB.
type gain struct {
	node
	*params
	level    *atomic.Value
	levelMod *lfo
}

func newGain() *gain {
	g := &gain{node: newNode(), params: newParams()}
	g.level = g.params.register("level", setGain(0, 4), patch.Number(1))
	g.params.alias("gain", "level")
	return g
}

func (g *gain) AddMod(param string, src engine.Node) error {
	l, err := asModulator(src)
	if err != nil {
		return err
	}
	if param != "level" && param != "gain" {
		return fmt.Errorf("parameter %q is not modulatable", param)
	}
	g.levelMod = l
	return nil
}

func (g *gain) process(at int64, size int) []float64 {
	buf, fresh := g.pull(at, size)
	if !fresh {
		return buf
	}
	level := g.level.Load().(float64)
	if g.levelMod != nil {
		level = core.Clamp(level+g.levelMod.value(at), 0, 4)
	}
	for n := range buf {
		buf[n] *= level
	}
	return g.commit(buf)
}

const maxEchoSeconds = 5

// echo is a feedback delay over a fractionally-read circular line.
type echo struct {
	node
	*params
	line     *delay.Line
	time     *atomic.Value
	feedback *atomic.Value
	mix      *atomic.Value
	timeMod  *lfo
}

func newEcho() (*echo, error) {
	line, err := delay.New(maxEchoSeconds * sampleRate)
	if err != nil {
		return nil, err
	}
	e := &echo{node: newNode(), params: newParams(), line: line}
	e.time = e.params.register("time", setFloat(0.001, maxEchoSeconds), patch.Number(0.25))
	e.feedback = e.params.register("feedback", setFloat(0, 0.99), patch.Number(0.4))
	e.mix = e.params.register("mix", setFloat(0, 1), patch.Number(0.5))
	return e, nil
}

func (e *echo) AddMod(param string, src engine.Node) error {
	l, err := asModulator(src)
	if err != nil {
		return err
	}
	if param != "time" {
		return fmt.Errorf("parameter %q is not modulatable", param)
	}
	e.timeMod = l
	return nil
}

func (e *echo) process(at int64, size int) []float64 {
	buf, fresh := e.pull(at, size)
	if !fresh {
		return buf
	}
	secs := e.time.Load().(float64)
	if e.timeMod != nil {
		secs = core.Clamp(secs+e.timeMod.value(at), 0.001, maxEchoSeconds)
	}
	offset := secs * sampleRate
	fb := e.feedback.Load().(float64)
	mix := e.mix.Load().(float64)
	for n := range buf {
		wet := e.line.ReadFractional(offset)
		e.line.Write(buf[n] + wet*fb)
		buf[n] = buf[n]*(1-mix) + wet*mix
	}
	return e.commit(buf)
}

// filter is one RBJ biquad, lowpass, highpass or bandpass by kind. The
// section's coefficients are redesigned on the render thread whenever the
// target frequency or Q moves, keeping the delay state intact.
type filter struct {
	node
	*params
	kind     patch.NodeKind
	section  *biquad.Section
	freq     *atomic.Value
	q        *atomic.Value
	freqMod  *lfo
	lastFreq float64
	lastQ    float64
}

func newFilter(kind patch.NodeKind) *filter {
	f := &filter{node: newNode(), params: newParams(), kind: kind}
	f.freq = f.params.register("frequency", setFloat(10, 20000), patch.Number(1000))
	f.q = f.params.register("Q", setFloat(0.05, 30), patch.Number(math.Sqrt2/2))
	f.params.alias("q", "Q")
	f.params.alias("resonance", "Q")
	f.lastFreq = 1000
	f.lastQ = math.Sqrt2 / 2
	f.section = biquad.NewSection(f.design(f.lastFreq, f.lastQ))
	return f
}

func (f *filter) design(freq, q float64) biquad.Coefficients {
	switch f.kind {
	case patch.KindHighpass:
		return design.Highpass(freq, q, sampleRate)
	case patch.KindBandpass:
		return design.Bandpass(freq, q, sampleRate)
	default:
		return design.Lowpass(freq, q, sampleRate)
	}
}

func (f *filter) AddMod(param string, src engine.Node) error {
	l, err := asModulator(src)
	if err != nil {
		return err
	}
	if param != "frequency" {
		return fmt.Errorf("parameter %q is not modulatable", param)
	}
	f.freqMod = l
	return nil
}

func (f *filter) process(at int64, size int) []float64 {
	buf, fresh := f.pull(at, size)
	if !fresh {
		return buf
	}
	freq := f.freq.Load().(float64)
	q := f.q.Load().(float64)
	if f.freqMod != nil {
		freq = core.Clamp(freq+f.freqMod.value(at), 10, 20000)
	}
	if freq != f.lastFreq || q != f.lastQ {
		f.section.Coefficients = f.design(freq, q)
		f.lastFreq, f.lastQ = freq, q
	}
	f.section.ProcessBlock(buf)
	return f.commit(buf)
}

const minBlockOrder = 6

// room is a convolution reverb over a generated decaying-noise impulse.
// The convolver runs fully wet and the dry path is mixed back in here,
// since its own wet/dry knobs aren't safe to turn while rendering. Size
// or decay edits build a fresh convolver on the control thread and swap
// it in whole.
type room struct {
	node
	*params
	verb  atomic.Value
	size  *atomic.Value
	decay *atomic.Value
	mix   *atomic.Value
	dry   []float64
}

func newRoom() (*room, error) {
	r := &room{node: newNode(), params: newParams()}
	r.size = r.params.register("size", setFloat(0.1, 10), patch.Number(2))
	r.decay = r.params.register("decay", setFloat(0.1, 20), patch.Number(2))
	r.mix = r.params.register("mix", setFloat(0, 1), patch.Number(0.3))
	r.params.setters["size"] = r.rebuilding(r.params.setters["size"])
	r.params.setters["decay"] = r.rebuilding(r.params.setters["decay"])
	r.params.alias("length", "size")
	if err := r.rebuild(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *room) rebuilding(set setter) setter {
	return func(v patch.Value, dest *atomic.Value) error {
		if err := set(v, dest); err != nil {
			return err
		}
		return r.rebuild()
	}
}

func (r *room) rebuild() error {
	size := r.size.Load().(float64)
	decay := r.decay.Load().(float64)
	verb, err := reverb.NewConvolutionReverb(impulse(size, decay), minBlockOrder)
	if err != nil {
		return err
	}
	verb.SetWetDry(1, 0)
	r.verb.Store(verb)
	return nil
}

// impulse synthesizes a room response: white noise under a power-law
// fade of the given length in seconds.
func impulse(size, decay float64) []float64 {
	n := int(size * sampleRate)
	rnd := rand.New(rand.NewSource(1))
	kernel := make([]float64, n)
	for i := range kernel {
		fade := math.Pow(1-float64(i)/float64(n), decay)
		kernel[i] = (rnd.Float64()*2 - 1) * fade * 0.1
	}
	return kernel
}

func (r *room) AddMod(param string, src engine.Node) error {
	if _, err := asModulator(src); err != nil {
		return err
	}
	return fmt.Errorf("parameter %q is not modulatable", param)
}

func (r *room) process(at int64, size int) []float64 {
	buf, fresh := r.pull(at, size)
	if !fresh {
		return buf
	}
	if len(r.dry) < size {
		r.dry = make([]float64, size)
	}
	dry := r.dry[:size]
	copy(dry, buf)
	verb := r.verb.Load().(*reverb.ConvolutionReverb)
	mix := r.mix.Load().(float64)
	if err := verb.ProcessInPlace(buf); err != nil {
		copy(buf, dry)
	}
	for n := range buf {
		buf[n] = dry[n]*(1-mix) + buf[n]*mix
	}
	return r.commit(buf)
}
