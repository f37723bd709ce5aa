package audio

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/pckerneis/micro/patch"
)

// params holds a node's automatable parameters. Values are written from
// the control thread and read lock-free from the render thread.
type params struct {
	values  map[string]*atomic.Value
	setters map[string]setter
}

// A setter validates a patch value and stores its runtime form in dest.
// The previous value stays in place when the setter rejects.
type setter func(v patch.Value, dest *atomic.Value) error

func newParams() *params {
	return &params{
		values:  make(map[string]*atomic.Value),
		setters: make(map[string]setter),
	}
}

// register adds a parameter and stores its initial value, panicking if
// the initial value is rejected.
func (p *params) register(key string, set setter, init patch.Value) *atomic.Value {
	prop := new(atomic.Value)
	p.values[key] = prop
	p.setters[key] = set
	if err := set(init, prop); err != nil {
		panic(err)
	}
	return prop
}

// alias makes key settable under a second name.
func (p *params) alias(name, key string) {
	p.values[name] = p.values[key]
	p.setters[name] = p.setters[key]
}

func (p *params) Set(key string, v patch.Value) error {
	prop, ok := p.values[key]
	if !ok {
		return fmt.Errorf("unknown parameter %q", key)
	}
	if err := p.setters[key](v, prop); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func setFloat(min, max float64) setter {
	return func(v patch.Value, dest *atomic.Value) error {
		n, ok := v.(patch.Number)
		if !ok {
			return fmt.Errorf("not a number: %v", v)
		}
		f := float64(n)
		if f < min || f > max {
			return fmt.Errorf("value out of range %v - %v: %v", min, max, f)
		}
		dest.Store(f)
		return nil
	}
}

// setGain accepts a linear amount or a dB literal and stores linear gain.
func setGain(min, max float64) setter {
	return func(v patch.Value, dest *atomic.Value) error {
		var f float64
		switch x := v.(type) {
		case patch.Number:
			f = float64(x)
		case patch.Decibel:
			f = core.DBToLinear(float64(x))
		default:
			return fmt.Errorf("not a gain amount: %v", v)
		}
		if f < min || f > max {
			return fmt.Errorf("gain out of range %v - %v: %v", min, max, f)
		}
		dest.Store(f)
		return nil
	}
}

var setSeconds = setFloat(0.0005, 15)
