package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/interp"
	wav "github.com/youpy/go-wav"

	"github.com/pckerneis/micro/engine"
	"github.com/pckerneis/micro/patch"
)

// sound is a mono buffer, treated as pitched at middle C.
type sound struct {
	buf []float64
}

var middleC = midiHz(60)

// fades applied around sample playback so starts and stops don't click.
var sampleFade = envSettings{attack: 0.002, decay: 1, sustain: 1, release: 0.05}

// sampler plays one decoded buffer, pitch-shifted by playback rate. The
// buffer loads in the background when the url parameter is set; until it
// arrives, triggering is a silent no-op.
type sampler struct {
	node
	*params

	backend *Backend
	snd     atomic.Value
	ring    *noteRing
	voices  [numVoices]*sampleVoice
	silence atomic.Bool

	level *atomic.Value

	freqMod  *lfo
	levelMod *lfo
}

func newSampler(b *Backend) *sampler {
	s := &sampler{
		node:    newNode(),
		params:  newParams(),
		backend: b,
		ring:    newNoteRing(64),
	}
	s.level = s.params.register("gain", setGain(0, 4), patch.Number(1))
	s.params.alias("level", "gain")
	s.params.register("url", s.setURL, patch.String(""))
	for n := range s.voices {
		s.voices[n] = &sampleVoice{}
	}
	return s
}

// setURL kicks off a background load; the voice pool picks the buffer up
// once it lands. A failed load is logged and leaves the sampler inert.
func (s *sampler) setURL(v patch.Value, dest *atomic.Value) error {
	str, ok := v.(patch.String)
	if !ok {
		return fmt.Errorf("not a string: %v", v)
	}
	dest.Store(string(str))
	if str == "" {
		return nil
	}
	s.backend.loads.Add(1)
	go func() {
		defer s.backend.loads.Done()
		snd, err := s.backend.sounds.load(string(str))
		if err != nil {
			log.Printf("audio: sample %q: %v", string(str), err)
			return
		}
		s.snd.Store(snd)
	}()
	return nil
}

func (s *sampler) AddMod(param string, src engine.Node) error {
	l, err := asModulator(src)
	if err != nil {
		return err
	}
	switch param {
	case "frequency", "detune":
		s.freqMod = l
	case "gain", "level":
		s.levelMod = l
	default:
		return fmt.Errorf("parameter %q is not modulatable", param)
	}
	return nil
}

func (s *sampler) PlayNote(when, freq, duration, velocity float64) {
	s.ring.push(noteCmd{
		start:    int64(when * sampleRate),
		frames:   int(duration * sampleRate),
		freq:     freq,
		velocity: velocity,
	})
}

func (s *sampler) Silence() {
	s.silence.Store(true)
}

func (s *sampler) process(at int64, size int) []float64 {
	buf, fresh := s.pull(at, size)
	if !fresh {
		return buf
	}
	if s.silence.CompareAndSwap(true, false) {
		s.ring.drain()
		for _, v := range s.voices {
			v.cut()
		}
	}
	s.ring.play(at+int64(size), func(cmd noteCmd) {
		s.startVoice(cmd)
	})
	gain := s.level.Load().(float64)
	for _, v := range s.voices {
		if v.state == stateFree {
			continue
		}
		v.process(buf, gain)
	}
	return s.commit(buf)
}

func (s *sampler) startVoice(cmd noteCmd) {
	snd, _ := s.snd.Load().(*sound)
	if snd == nil {
		return
	}
	v := s.freeVoice()
	if v == nil {
		log.Print("audio: no free voice available")
		return
	}
	freq, level := cmd.freq, cmd.velocity
	if s.freqMod != nil {
		freq += s.freqMod.value(cmd.start)
	}
	if s.levelMod != nil {
		level = core.Clamp(level+s.levelMod.value(cmd.start), 0, 1)
	}
	v.start(snd, freq/middleC, level, cmd.frames)
}

func (s *sampler) freeVoice() *sampleVoice {
	for _, v := range s.voices {
		if v.state == stateFree {
			return v
		}
	}
	return nil
}

type sampleVoice struct {
	snd    *sound
	pos    float64
	rate   float64
	level  float64
	env    envelope
	frames int
	played int
	state  voiceState
}

func (v *sampleVoice) start(snd *sound, rate, level float64, frames int) {
	v.snd = snd
	v.pos = 0
	v.rate = rate
	v.level = level
	v.frames = frames
	v.played = 0
	v.env.startAttack(sampleFade)
	v.state = stateActive
}

func (v *sampleVoice) process(buf []float64, gain float64) {
	src := v.snd.buf
	for n := range buf {
		p := int(v.pos)
		if p+2 >= len(src) {
			v.free()
			return
		}
		var xm1 float64
		if p > 0 {
			xm1 = src[p-1]
		}
		t := v.pos - float64(p)
		buf[n] += interp.Hermite4(t, xm1, src[p], src[p+1], src[p+2]) * v.env.value() * v.level * gain
		v.pos += v.rate
	}
	v.played += len(buf)
	if v.state == stateActive && v.played >= v.frames {
		v.state = stateReleased
		v.env.startRelease()
	}
	if v.state == stateReleased && v.env.idle() {
		v.free()
	}
}

func (v *sampleVoice) free() {
	v.state = stateFree
	v.snd = nil
}

func (v *sampleVoice) cut() {
	if v.state == stateFree {
		return
	}
	v.env.release = 0.005
	v.env.startRelease()
	v.state = stateReleased
}

// soundCache shares decoded buffers between samplers. Keys are whatever
// the patch said: a registered name, a file path or an http(s) URL.
type soundCache struct {
	mu     sync.Mutex
	sounds map[string]*sound
}

func newSoundCache() *soundCache {
	return &soundCache{sounds: make(map[string]*sound)}
}

func (c *soundCache) lookup(name string) (*sound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snd, ok := c.sounds[name]
	return snd, ok
}

func (c *soundCache) add(name string, snd *sound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sounds[name] = snd
}

// load resolves name to a buffer, fetching and decoding on first use.
// Two racing loads of one name both fetch and the loser's buffer wins
// the cache slot, which is harmless.
func (c *soundCache) load(name string) (*sound, error) {
	if snd, ok := c.lookup(name); ok {
		return snd, nil
	}
	data, err := fetch(name)
	if err != nil {
		return nil, err
	}
	snd, err := decodeWav(data)
	if err != nil {
		return nil, err
	}
	c.add(name, snd)
	return snd, nil
}

func fetch(name string) ([]byte, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: %s", name, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(name)
}

// decodeWav reads the first channel of a wav file.
func decodeWav(data []byte) (*sound, error) {
	r := wav.NewReader(bytes.NewReader(data))
	snd := &sound{}
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, sample := range samples {
			snd.buf = append(snd.buf, r.FloatValue(sample, 0))
		}
	}
	if len(snd.buf) == 0 {
		return nil, errors.New("no samples")
	}
	return snd, nil
}
