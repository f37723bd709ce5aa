package audio

import (
	"math"
	"testing"
)

func TestEnvelopeShape(t *testing.T) {
	var e envelope
	e.startAttack(envSettings{attack: 0.01, decay: 0.1, sustain: 0.5, release: 0.05})

	attackSamples := int(0.01 * sampleRate)
	var val float64
	for n := 0; n < attackSamples; n++ {
		next := e.value()
		if next < val-1e-9 {
			t.Fatalf("attack not rising at sample %v: %v -> %v", n, val, next)
		}
		val = next
	}
	if val < 0.98 {
		t.Errorf("attack should reach full level, got %v", val)
	}

	decaySamples := int(0.1 * sampleRate)
	for n := 0; n < decaySamples+1; n++ {
		val = e.value()
	}
	if want := 0.5; math.Abs(want-val) > 0.01 {
		t.Errorf("decay should settle at sustain: want %v, got %v", want, val)
	}

	for n := 0; n < sampleRate; n++ {
		val = e.value()
	}
	if want := 0.5; val != want {
		t.Errorf("sustain should hold: want %v, got %v", want, val)
	}

	e.startRelease()
	releaseSamples := int(0.05 * sampleRate)
	for n := 0; n < releaseSamples+2; n++ {
		val = e.value()
	}
	if val != 0 {
		t.Errorf("release should reach zero, got %v", val)
	}
	if !e.idle() {
		t.Error("envelope should be idle after release")
	}
}

func TestEnvelopeNoSustain(t *testing.T) {
	var e envelope
	e.startAttack(envSettings{attack: 0.001, decay: 0.05, sustain: 0, release: 0.05})

	for n := 0; n < int(0.2*sampleRate); n++ {
		e.value()
	}
	if !e.idle() {
		t.Error("zero-sustain envelope should finish by itself")
	}
}

func TestEnvelopeReleaseFromAttack(t *testing.T) {
	var e envelope
	e.startAttack(envSettings{attack: 1, decay: 0.1, sustain: 0.5, release: 0.01})

	for n := 0; n < 1000; n++ {
		e.value()
	}
	from := e.val
	if from <= 0 || from >= 0.1 {
		t.Fatalf("expected a partial attack, got %v", from)
	}
	e.startRelease()
	for n := 0; n < int(0.01*sampleRate)+2; n++ {
		if e.value() > from {
			t.Fatal("release should ramp down from the interrupted attack")
		}
	}
	if !e.idle() {
		t.Error("envelope should be idle after release")
	}
}
