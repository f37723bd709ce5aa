package audio

type envelopeState int

const (
	stateInit envelopeState = iota
	stateAttack
	stateDecay
	stateSustain
	stateRelease
)

// envSettings is a snapshot of an instrument's envelope parameters, taken
// when a voice starts so later edits don't bend notes already sounding.
type envSettings struct {
	attack  float64
	decay   float64
	sustain float64
	release float64
}

type envelope struct {
	envSettings

	attackRate  float64
	decayRate   float64
	releaseRate float64

	val   float64
	state envelopeState
}

func (e *envelope) value() float64 {
	switch e.state {
	case stateInit:
		return 0.
	case stateAttack:
		e.val += e.attackRate
		if e.val >= 1 {
			e.val = 1.0
			if e.decayRate > 0 {
				e.state = stateDecay
			} else {
				e.state = stateSustain
			}
		}
	case stateDecay:
		e.val -= e.decayRate
		if e.val <= e.sustain {
			e.val = e.sustain
			e.state = stateSustain
		}
	case stateSustain:
		if e.sustain == 0 {
			e.state = stateInit
		}
	case stateRelease:
		e.val -= e.releaseRate
		if e.val <= 0 {
			e.val = 0
			e.state = stateInit
		}
	}
	return e.val
}

func (e *envelope) startAttack(s envSettings) {
	e.envSettings = s
	e.val = 0
	e.state = stateAttack
	e.attackRate = 1.0 / (e.attack * sampleRate)
	e.decayRate = (1.0 - e.sustain) / (e.decay * sampleRate)
}

func (e *envelope) startRelease() {
	e.state = stateRelease
	e.releaseRate = e.val / (e.release * sampleRate)
}

func (e *envelope) idle() bool { return e.state == stateInit }
