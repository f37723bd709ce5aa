package audio

import (
	"math"
	"testing"

	"github.com/pckerneis/micro/patch"
)

// renderBlocks pulls blocks consecutive blocks starting at the absolute
// sample from and concatenates their output.
func renderBlocks(r renderer, from int64, blocks int) []float64 {
	var out []float64
	for n := 0; n < blocks; n++ {
		blk := r.process(from+int64(n*blockSize), blockSize)
		out = append(out, blk...)
	}
	return out
}

func rms(buf []float64) float64 {
	var sum float64
	for _, v := range buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func activeVoices(o *oscillator) int {
	count := 0
	for _, v := range o.voices {
		if v.state != stateFree {
			count++
		}
	}
	return count
}

func TestOscillatorPlaysNote(t *testing.T) {
	o := newOscillator(patch.KindSine)
	if err := o.Set("release", patch.Number(0.01)); err != nil {
		t.Fatal(err)
	}
	o.PlayNote(0, 440, 0.05, 1)

	out := renderBlocks(o, 0, 8816/blockSize)
	if got := rms(out[:2205]); got < 0.01 {
		t.Errorf("expected audible output after note start, rms %v", got)
	}
	if got := rms(out[len(out)-441:]); got > 0.001 {
		t.Errorf("voice should have released, rms %v", got)
	}
	if want, got := 0, activeVoices(o); want != got {
		t.Errorf("want %v active voices, got %v", want, got)
	}
}

func TestOscillatorFutureNoteWaits(t *testing.T) {
	o := newOscillator(patch.KindSine)
	o.PlayNote(0.5, 440, 0.05, 1)

	quiet := renderBlocks(o, 0, 256)
	if got := rms(quiet); got != 0 {
		t.Errorf("note should not sound before its start time, rms %v", got)
	}

	loud := renderBlocks(o, 22048, 64)
	if got := rms(loud); got < 0.01 {
		t.Errorf("note should sound at its start time, rms %v", got)
	}
}

func TestOscillatorSilence(t *testing.T) {
	o := newOscillator(patch.KindSine)
	o.PlayNote(0, 440, 5, 1)
	o.PlayNote(1, 440, 5, 1)

	renderBlocks(o, 0, 8)
	if want, got := 1, activeVoices(o); want != got {
		t.Fatalf("want %v active voice, got %v", want, got)
	}

	o.Silence()
	renderBlocks(o, 128, 64)
	if want, got := 0, activeVoices(o); want != got {
		t.Errorf("want %v active voices after silence, got %v", want, got)
	}

	out := renderBlocks(o, 44096, 64)
	if got := rms(out); got != 0 {
		t.Errorf("queued note should have been dropped, rms %v", got)
	}
}

func TestOscillatorVoiceOverflow(t *testing.T) {
	o := newOscillator(patch.KindSine)
	for n := 0; n < numVoices+4; n++ {
		o.PlayNote(0, 220+float64(n), 5, 1)
	}
	renderBlocks(o, 0, 4)
	if want, got := numVoices, activeVoices(o); want != got {
		t.Errorf("want %v active voices, got %v", want, got)
	}
}

func TestOscillatorPerNoteModulation(t *testing.T) {
	o := newOscillator(patch.KindSine)
	l, err := newLFO(patch.KindSine, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.AddMod("frequency", l); err != nil {
		t.Fatal(err)
	}

	// a quarter period in: the modulator contributes its full level
	start := int64(sampleRate / 4)
	o.PlayNote(float64(start)/sampleRate, 400, 1, 1)
	o.process(start, blockSize)

	var voice *oscVoice
	for _, v := range o.voices {
		if v.state != stateFree {
			voice = v
		}
	}
	if voice == nil {
		t.Fatal("no voice started")
	}
	want := (400 + 100.0) * twoPi / sampleRate
	if math.Abs(voice.delta-want) > 1e-6 {
		t.Errorf("voice delta: want %v, got %v", want, voice.delta)
	}
}

func TestOscillatorModTargets(t *testing.T) {
	o := newOscillator(patch.KindSine)
	l, err := newLFO(patch.KindSine, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.AddMod("sustain", l); err == nil {
		t.Error("expected error for a non-modulatable parameter")
	}
	if err := o.AddMod("frequency", newOscillator(patch.KindSine)); err == nil {
		t.Error("expected error for a non-modulator source")
	}
}

func TestWaveforms(t *testing.T) {
	square := waveform(patch.KindSquare)
	if want, got := 1.0, square(0.1); want != got {
		t.Errorf("square low phase: want %v, got %v", want, got)
	}
	if want, got := -1.0, square(math.Pi+0.1); want != got {
		t.Errorf("square high phase: want %v, got %v", want, got)
	}

	saw := waveform(patch.KindSawtooth)
	if got := saw(0); math.Abs(got+1) > 1e-12 {
		t.Errorf("saw start: want -1, got %v", got)
	}
	if got := saw(math.Pi); math.Abs(got) > 1e-12 {
		t.Errorf("saw middle: want 0, got %v", got)
	}

	tri := waveform(patch.KindTriangle)
	if got := tri(math.Pi / 2); math.Abs(got) > 1e-12 {
		t.Errorf("triangle quarter: want 0, got %v", got)
	}
	if got := tri(math.Pi); math.Abs(got-1) > 1e-12 {
		t.Errorf("triangle peak: want 1, got %v", got)
	}
}

func TestLFOValue(t *testing.T) {
	l, err := newLFO(patch.KindSine, 2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := l.value(0); math.Abs(got) > 1e-12 {
		t.Errorf("sine lfo at phase zero: want 0, got %v", got)
	}
	quarter := int64(sampleRate / 8) // an eighth of a second is a quarter period at 2 Hz
	if got := l.value(quarter); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("sine lfo at peak: want 0.5, got %v", got)
	}

	if _, err := newLFO(patch.KindSine, 0, 1); err == nil {
		t.Error("expected error for zero frequency")
	}
}
