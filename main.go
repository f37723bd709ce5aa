package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pckerneis/micro/audio"
	"github.com/pckerneis/micro/engine"
)

func main() {
	var (
		bpm    = flag.Float64("bpm", 120, "initial tempo in beats per minute")
		sounds = flag.String("sounds", "", "glob of wav files to preload as named samples")
		run    = flag.String("run", "", "patch file to apply on startup")
		watch  = flag.Bool("watch", false, "re-apply the -run file whenever it changes")
	)
	flag.Parse()

	backend, err := audio.New()
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

	if *sounds != "" {
		if err := backend.Preload(*sounds); err != nil {
			log.Fatal(err)
		}
	}

	eng := engine.New(backend)
	if err := eng.SetBPM(*bpm); err != nil {
		log.Fatal(err)
	}

	sess := newSession(eng)
	if *run != "" {
		if *watch {
			err = sess.watch(*run)
		} else {
			err = sess.load(*run)
		}
		if err != nil {
			log.Fatal(err)
		}
		eng.Play()
	}

	if err := repl(sess); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	eng.Stop()
}

// session ties the repl to a running engine and tracks the files being
// watched.
type session struct {
	engine *engine.Engine

	mu       sync.Mutex
	watchers map[string]chan struct{}
}

func newSession(eng *engine.Engine) *session {
	return &session{engine: eng, watchers: make(map[string]chan struct{})}
}

func (s *session) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.apply(string(data))
}

// apply swaps in a new live graph without stopping playback.
// Diagnostics print all at once and never fail the apply.
func (s *session) apply(src string) error {
	g, err := s.engine.Apply(context.Background(), src)
	if err != nil {
		return err
	}
	if len(g.Errors) > 0 {
		renderErrors(os.Stdout, g.Errors)
	}
	return nil
}

// watch applies path now and re-applies it whenever its modification
// time moves, polling twice a second.
func (s *session) watch(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := s.load(path); err != nil {
		return err
	}

	quit := make(chan struct{})
	s.mu.Lock()
	if _, ok := s.watchers[path]; ok {
		s.mu.Unlock()
		return fmt.Errorf("already watching %s", path)
	}
	s.watchers[path] = quit
	s.mu.Unlock()

	go s.poll(path, info.ModTime(), quit)
	return nil
}

func (s *session) unwatch(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quit, ok := s.watchers[path]
	if !ok {
		return fmt.Errorf("not watching %s", path)
	}
	close(quit)
	delete(s.watchers, path)
	return nil
}

func (s *session) poll(path string, last time.Time, quit chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil || info.ModTime().Equal(last) {
				continue
			}
			last = info.ModTime()
			if err := s.load(path); err != nil {
				fmt.Println(err)
			}
		}
	}
}
