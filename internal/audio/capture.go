package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FrameSamples is the capture buffer size in samples.
const FrameSamples = 1024

var ErrCaptureUnavailable = errors.New("capture device unavailable")

// Capture yields fixed-size frames of mono float samples.
type Capture interface {
	ReadFrame() ([]float32, error)
	SampleRate() int
	Close() error
}

// PCMSource reads raw little-endian PCM16 mono from a stream, such as a
// file or a pipe from an external recorder.
type PCMSource struct {
	r    io.ReadCloser
	rate int
	buf  []byte
}

func NewPCMSource(r io.ReadCloser, rate int) *PCMSource {
	return &PCMSource{r: r, rate: rate, buf: make([]byte, 2*FrameSamples)}
}

// OpenPCM opens path ("-" for stdin) as a capture source.
func OpenPCM(path string, rate int) (*PCMSource, error) {
	if path == "" {
		return nil, ErrCaptureUnavailable
	}
	if path == "-" {
		return NewPCMSource(os.Stdin, rate), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return NewPCMSource(f, rate), nil
}

// ReadFrame returns the next frame. A short tail is returned as a shorter
// frame; io.EOF follows.
func (p *PCMSource) ReadFrame() ([]float32, error) {
	n, err := io.ReadFull(p.r, p.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		n -= n % 2
		if n == 0 {
			return nil, io.EOF
		}
	default:
		return nil, err
	}
	return DecodePCM16(p.buf[:n])
}

func (p *PCMSource) SampleRate() int { return p.rate }

func (p *PCMSource) Close() error { return p.r.Close() }
