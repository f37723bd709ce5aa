package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pckerneis/micro/patch"
)

// PPQ is the tick resolution, pulses per quarter note. Playback position is
// an integer tick counter so that thousands of steps accumulate no
// floating-point drift.
const PPQ = 96

const (
	lookahead    = 0.15 // seconds scheduled ahead of the audio clock
	wakeInterval = 25 * time.Millisecond
	startDelay   = 0.05  // headroom between Play and the first tick
	safetyMargin = 0.005 // minimum distance of a dispatched note from now
)

func tickDuration(bpm float64) float64 {
	return 60.0 / bpm / PPQ
}

// A slot is one precomputed grid step: the event starting on it, nil for
// continuation steps, and the step length in ticks.
type slot struct {
	event *patch.Event
	ticks int64
}

// A cursor walks one pattern against the tick counter.
type cursor struct {
	target string
	inst   Instrument
	slots  []slot
	loop   int64 // loop length in ticks
	next   int64 // absolute tick of the next slot boundary
	idx    int   // slot that boundary belongs to
}

func newCursor(p *patch.Pattern, inst Instrument) *cursor {
	c := &cursor{target: p.Target, inst: inst}
	for i := range p.Slots {
		ticks := int64(math.Round(p.Slots[i].Beats * PPQ))
		if ticks < 1 {
			ticks = 1
		}
		c.slots = append(c.slots, slot{event: p.Slots[i].Event, ticks: ticks})
		c.loop += ticks
	}
	return c
}

// align positions the cursor on the first slot boundary at or after tick,
// so a pattern swapped in mid-playback continues from the transport
// position instead of retriggering from its start.
func (c *cursor) align(tick int64) {
	c.next, c.idx = 0, 0
	if tick <= 0 || c.loop == 0 {
		return
	}
	c.next = (tick / c.loop) * c.loop
	for c.next < tick {
		c.next += c.slots[c.idx].ticks
		c.idx = (c.idx + 1) % len(c.slots)
	}
}

// Transport converts the audio clock into the tick grid and fires pattern
// events ahead of time. One periodic wake-up walks every tick inside the
// lookahead window; dispatched notes carry absolute future timestamps, so
// scheduling jitter never reaches the audio output.
type Transport struct {
	clock Clock
	rand  *rand.Rand

	mu        sync.Mutex
	bpm       float64
	playing   bool
	startTime float64
	elapsed   float64
	tick      int64   // next tick to process
	tickTime  float64 // absolute clock time of that tick
	cursors   []*cursor
	quit      chan struct{}
}

func NewTransport(clock Clock) *Transport {
	return &Transport{
		clock: clock,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		bpm:   120,
	}
}

// Play starts the transport from tick zero. Restarting after Stop resets
// the musical position; there is no pause that preserves phase.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}
	t.playing = true
	t.startTime = t.clock.Now() + startDelay
	t.tick = 0
	t.tickTime = t.startTime
	for _, c := range t.cursors {
		c.align(0)
	}
	t.quit = make(chan struct{})
	go t.run(t.quit)
}

// Stop halts scheduling and records the elapsed time. It is idempotent.
// Silencing voices is the caller's business: the transport only owns time.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.playing = false
	t.elapsed = t.clock.Now() - t.startTime
	close(t.quit)
	t.quit = nil
}

func (t *Transport) run(quit chan struct{}) {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			t.advance()
		}
	}
}

// advance processes every tick whose time falls inside the lookahead
// window. Tick time accumulates with the tempo in effect when the tick is
// reached, so a BPM change applies from the next tick on and never
// reinterprets ticks already scheduled.
func (t *Transport) advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	horizon := t.clock.Now() + lookahead
	for t.tickTime <= horizon {
		for _, c := range t.cursors {
			if c.next == t.tick {
				t.fire(c)
			}
		}
		t.tick++
		t.tickTime += tickDuration(t.bpm)
	}
}

// fire dispatches the event starting on the cursor's current slot and
// advances the cursor. Continuations and rests only advance: ties were
// absorbed into event durations at parse time.
func (t *Transport) fire(c *cursor) {
	s := c.slots[c.idx]
	when := t.tickTime
	c.next += s.ticks
	c.idx = (c.idx + 1) % len(c.slots)

	ev := s.event
	if ev == nil || ev.Token == nil {
		return
	}
	tok := ev.Token
	if tok.Probability < 1 && t.rand.Float64() >= tok.Probability {
		return
	}
	if now := t.clock.Now(); when < now+safetyMargin {
		when = now + safetyMargin
	}
	duration := ev.Beats * 60.0 / t.bpm
	for _, n := range tok.Notes {
		freq := n.Hz
		if freq == 0 {
			freq = midiToFreq(n.Midi)
		}
		c.inst.PlayNote(when, safeFreq(freq), duration, tok.Velocity)
	}
}

// setCursors swaps the active pattern set. While playing, every new
// cursor aligns to the next slot boundary at or after the current tick.
func (t *Transport) setCursors(cursors []*cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		for _, c := range cursors {
			c.align(t.tick)
		}
	}
	t.cursors = cursors
}

func (t *Transport) SetBPM(bpm float64) error {
	if bpm < 1 || bpm > 500 {
		return fmt.Errorf("bpm out of range 1 - 500: %v", bpm)
	}
	t.mu.Lock()
	t.bpm = bpm
	t.mu.Unlock()
	return nil
}

func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Tick is the next unprocessed transport tick.
func (t *Transport) Tick() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick
}

// Elapsed is the time played since the last Play, frozen by Stop.
func (t *Transport) Elapsed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return t.clock.Now() - t.startTime
	}
	return t.elapsed
}
