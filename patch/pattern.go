package patch

type stepKind int

const (
	stepNote stepKind = iota
	stepRest
	stepTie
)

// A step is one grid item of a bracketed sequence before tie reduction.
type step struct {
	kind stepKind
	tok  *Token
}

// makeEvents reduces a sequence of steps to grid slots. A tie extends the
// previous sounding event of the same sequence and leaves a continuation
// slot behind; a leading tie has nothing to extend yet, so its duration is
// returned as carry for the caller to attribute across the segment or loop
// boundary. A rest is an event with a nil token.
func makeEvents(steps []step, stepBeats float64) ([]Slot, float64) {
	var (
		slots        []Slot
		carry        float64
		lastSounding = -1
	)
	for _, s := range steps {
		switch s.kind {
		case stepTie:
			if lastSounding >= 0 {
				slots[lastSounding].Event.Beats += stepBeats
			} else {
				carry += stepBeats
			}
			slots = append(slots, Slot{Beats: stepBeats})
		case stepRest:
			slots = append(slots, Slot{Event: &Event{Beats: stepBeats}, Beats: stepBeats})
		case stepNote:
			slots = append(slots, Slot{Event: &Event{Token: s.tok, Beats: stepBeats}, Beats: stepBeats})
			lastSounding = len(slots) - 1
		}
	}
	return slots, carry
}

// lastSoundingSlot walks backward past rests and continuations to the last
// slot holding a sounding event, or -1 if there is none.
func lastSoundingSlot(slots []Slot) int {
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i].Event != nil && slots[i].Event.Token != nil {
			return i
		}
	}
	return -1
}

// A chain accumulates ++-concatenated segments into one grid. Carried tie
// durations always attribute backward: a segment's leading carry lands on
// the last sounding event gathered so far, or keeps travelling backward as
// the chain's own leading carry when no sounding event exists yet.
type chain struct {
	slots []Slot
	carry float64
}

func (c *chain) add(slots []Slot, carry float64) {
	if carry > 0 {
		if i := lastSoundingSlot(c.slots); i >= 0 {
			c.slots[i].Event.Beats += carry
		} else {
			c.carry += carry
		}
	}
	c.slots = append(c.slots, slots...)
}

// finish resolves the chain's leftover leading carry: the final sounding
// event is extended across the loop boundary, and the carry is reported on
// the pattern so it is never silently dropped.
func (c *chain) finish() ([]Slot, float64) {
	if c.carry > 0 {
		if i := lastSoundingSlot(c.slots); i >= 0 {
			c.slots[i].Event.Beats += c.carry
		}
	}
	return c.slots, c.carry
}

// copySlots deep-copies a slot grid. Pattern variables hand out copies so a
// chained use can absorb carried ties without mutating the variable itself.
func copySlots(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	for i, s := range slots {
		out[i] = s
		if s.Event == nil {
			continue
		}
		ev := *s.Event
		if s.Event.Token != nil {
			tok := *s.Event.Token
			tok.Notes = append([]Note(nil), s.Event.Token.Notes...)
			ev.Token = &tok
		}
		out[i].Event = &ev
	}
	return out
}
