// Package audio renders patches through portaudio. One render goroutine
// (the stream callback) pulls the installed node graph in small mono
// blocks and mixes it into the stereo output; everything crossing into
// it does so through atomics or the per-instrument note rings.
package audio

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/pckerneis/micro/engine"
	"github.com/pckerneis/micro/patch"
)

const (
	sampleRate = 44100
	bufferSize = 512
	blockSize  = 16
)

// clock counts rendered samples.
type clock struct {
	samples atomic.Int64
}

func (c *clock) now() int64 { return c.samples.Load() }

func (c *clock) seconds() float64 {
	return float64(c.samples.Load()) / sampleRate
}

// Backend realizes parsed node definitions as live render nodes and owns
// the output device. It implements the engine's backend seam.
type Backend struct {
	clock   clock
	sink    *sink
	sources atomic.Value
	master  []float64
	sounds  *soundCache
	loads   sync.WaitGroup
}

// New opens the default output device and starts rendering silence.
func New() (*Backend, error) {
	b := newBackend()
	snk, err := newSink(b.render)
	if err != nil {
		return nil, err
	}
	b.sink = snk
	if err := snk.start(); err != nil {
		snk.stop()
		return nil, err
	}
	return b, nil
}

func newBackend() *Backend {
	b := &Backend{
		sounds: newSoundCache(),
		master: make([]float64, bufferSize),
	}
	b.sources.Store([]renderer{})
	return b
}

func (b *Backend) Close() error {
	if b.sink == nil {
		return nil
	}
	return b.sink.stop()
}

// Now reports the audio clock, in seconds of rendered output.
func (b *Backend) Now() float64 {
	return b.clock.seconds()
}

// Node builds the live node for one definition kind.
func (b *Backend) Node(kind patch.NodeKind) (engine.Node, error) {
	switch kind {
	case patch.KindSine, patch.KindSquare, patch.KindSawtooth, patch.KindTriangle:
		return newOscillator(kind), nil
	case patch.KindSample:
		return newSampler(b), nil
	case patch.KindGain:
		return newGain(), nil
	case patch.KindDelay:
		return newEcho()
	case patch.KindLowpass, patch.KindHighpass, patch.KindBandpass:
		return newFilter(kind), nil
	case patch.KindReverb:
		return newRoom()
	default:
		return nil, fmt.Errorf("no renderer for node kind %s", kind)
	}
}

// LFO builds the continuous modulator for an instrument definition used
// as a modulation source.
func (b *Backend) LFO(kind patch.NodeKind, freq, level float64) (engine.Node, error) {
	return newLFO(kind, freq, level)
}

// Install swaps in the set of nodes feeding the output. An empty set
// silences the device.
func (b *Backend) Install(sources []engine.Node) {
	rs := make([]renderer, 0, len(sources))
	for _, src := range sources {
		if r, ok := src.(renderer); ok {
			rs = append(rs, r)
		} else {
			log.Printf("audio: output %T cannot render", src)
		}
	}
	b.sources.Store(rs)
}

// Wait blocks until pending sample loads settle or ctx runs out. Loads
// are never cancelled mid-flight; an abandoned graph just stops being
// rendered.
func (b *Backend) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.loads.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Preload decodes every wav file matching the glob, registering each
// buffer under its base name as well as its path.
func (b *Backend) Preload(glob string) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return err
	}
	for _, file := range files {
		snd, err := b.sounds.load(file)
		if err != nil {
			log.Printf("audio: preload %s: %v", file, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		b.sounds.add(name, snd)
	}
	return nil
}

// render is the stream callback: pull every installed source in blocks,
// sum onto the master bus, write both channels clamped, advance the
// clock.
func (b *Backend) render(out [][]float32) {
	frames := len(out[0])
	if len(b.master) < frames {
		b.master = make([]float64, frames)
	}
	master := b.master[:frames]
	for i := range master {
		master[i] = 0
	}
	sources := b.sources.Load().([]renderer)
	at := b.clock.now()
	for n := 0; n < frames; n += blockSize {
		size := blockSize
		if rem := frames - n; rem < size {
			size = rem
		}
		for _, src := range sources {
			blk := src.process(at+int64(n), size)
			for i, v := range blk {
				master[n+i] += v
			}
		}
	}
	for i, v := range master {
		sample := float32(core.Clamp(v, -1, 1))
		out[0][i] = sample
		out[1][i] = sample
	}
	b.clock.samples.Add(int64(frames))
}
