// Package denoise implements stationary spectral-gate noise reduction, the
// same family of algorithm behind the usual "reduce background hum from a
// mic" tools: track a per-frequency noise floor and attenuate bins that
// never rise meaningfully above it.
package denoise

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Processor transforms one block of mono samples. Implementations must
// preserve the block length and may keep adaptive state across calls.
type Processor interface {
	Process(block []float32) []float32
	Reset()
}

// PassThrough returns blocks unchanged. Used when noise reduction is
// toggled off.
type PassThrough struct{}

func (PassThrough) Process(block []float32) []float32 { return block }
func (PassThrough) Reset()                            {}

type Config struct {
	Strength  float64 // how hard the gate pushes against the noise floor
	GainFloor float64 // minimum per-bin gain, keeps residual ambience
}

func (c Config) withDefaults() Config {
	if c.Strength <= 0 {
		c.Strength = 1.5
	}
	if c.GainFloor <= 0 {
		c.GainFloor = 0.05
	}
	return c
}

const (
	// Noise floor estimate falls quickly toward quieter frames and climbs
	// slowly, so speech onsets are not learned as noise.
	noiseFall = 0.6
	noiseRise = 0.03

	minBlockSize = 32
)

// SpectralGate is a stationary spectral-gate Processor. Blocks are analyzed
// as Hann-windowed frames at 50% overlap; each bin is scaled by
// clamp(1 - Strength*floor/mag, GainFloor, 1) and the frames are
// overlap-added back together. Output runs half a block behind input.
type SpectralGate struct {
	cfg       Config
	blockSize int
	hop       int

	win    []float64
	noise  []float64 // per-bin floor estimate
	primed bool

	hist  []float64 // last hop input samples, feeds the straddling frame
	tail  []float64 // overlap-add carry from the previous frame
	frame []float64 // scratch
}

// NewSpectralGate creates a gate for a fixed block size. The size must be
// even so frames can overlap by half a block.
func NewSpectralGate(blockSize int, cfg Config) (*SpectralGate, error) {
	if blockSize < minBlockSize || blockSize%2 != 0 {
		return nil, fmt.Errorf("block size must be an even number >= %d, got %d", minBlockSize, blockSize)
	}
	return &SpectralGate{
		cfg:       cfg.withDefaults(),
		blockSize: blockSize,
		hop:       blockSize / 2,
		win:       window.Hann(blockSize),
		noise:     make([]float64, blockSize/2+1),
		hist:      make([]float64, blockSize/2),
		tail:      make([]float64, blockSize/2),
		frame:     make([]float64, blockSize),
	}, nil
}

// Reset clears the noise floor and the overlap state, as at session start.
func (s *SpectralGate) Reset() {
	for i := range s.noise {
		s.noise[i] = 0
	}
	for i := range s.hist {
		s.hist[i] = 0
	}
	for i := range s.tail {
		s.tail[i] = 0
	}
	s.primed = false
}

// Process denoises one block in place and returns it. The block length must
// match the configured size; mismatched blocks pass through untouched.
func (s *SpectralGate) Process(block []float32) []float32 {
	if len(block) != s.blockSize {
		return block
	}
	h := s.hop

	// Frame 1 straddles the previous block, frame 2 is the current block.
	for i := 0; i < h; i++ {
		s.frame[i] = s.hist[i]
		s.frame[h+i] = float64(block[i])
	}
	f1 := s.gate(s.frame)

	for i, v := range block {
		s.frame[i] = float64(v)
	}
	f2 := s.gate(s.frame)

	// Capture the history before the block is overwritten with output.
	for i := 0; i < h; i++ {
		s.hist[i] = float64(block[h+i])
	}

	// Overlap-add: Hann at 50% overlap sums to unity, no synthesis window.
	for i := 0; i < h; i++ {
		block[i] = float32(s.tail[i] + f1[i])
		block[h+i] = float32(f1[h+i] + f2[i])
		s.tail[i] = f2[h+i]
	}
	return block
}

// gate windows one frame, attenuates it in the frequency domain against the
// running noise floor, and returns the time-domain result.
func (s *SpectralGate) gate(frame []float64) []float64 {
	n := s.blockSize
	windowed := make([]float64, n)
	for i, v := range frame {
		windowed[i] = v * s.win[i]
	}
	spec := fft.FFTReal(windowed)

	half := n / 2
	for k := 0; k <= half; k++ {
		mag := cmplx.Abs(spec[k])

		est := s.noise[k]
		switch {
		case !s.primed:
			est = mag
		case mag < est:
			est += noiseFall * (mag - est)
		default:
			est += noiseRise * (mag - est)
		}
		s.noise[k] = est

		g := s.cfg.GainFloor
		if mag > 1e-12 {
			g = 1 - s.cfg.Strength*est/mag
			if g < s.cfg.GainFloor {
				g = s.cfg.GainFloor
			}
			if g > 1 {
				g = 1
			}
		}
		c := complex(g, 0)
		spec[k] *= c
		if k > 0 && k < half {
			// mirror bin, keeps the spectrum conjugate-symmetric
			spec[n-k] *= c
		}
	}
	s.primed = true

	res := fft.IFFT(spec)
	out := make([]float64, n)
	for i, c := range res {
		out[i] = real(c)
	}
	return out
}
