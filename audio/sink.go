package audio

import (
	"github.com/gordonklaus/portaudio"
)

// sink owns the portaudio output stream. All mixing happens in the
// callback handed in by the backend; the sink is device plumbing only.
type sink struct {
	stream *portaudio.Stream
}

func newSink(process func([][]float32)) (*sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(0, 2, sampleRate, bufferSize, process)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return &sink{stream: stream}, nil
}

func (s *sink) start() error {
	return s.stream.Start()
}

func (s *sink) stop() error {
	s.stream.Close()
	portaudio.Terminate()
	return nil
}
