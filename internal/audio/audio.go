package audio

import (
	"errors"
	"strings"
)

// Device describes one entry of the OS audio device table.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// IsInput reports whether the device can capture audio.
func (d Device) IsInput() bool { return d.MaxInputChannels > 0 }

// IsOutput reports whether the device can play audio.
func (d Device) IsOutput() bool { return d.MaxOutputChannels > 0 }

// Backend abstracts the host audio subsystem so the engine can run against
// the real PortAudio implementation or the in-memory Dummy.
type Backend interface {
	Devices() ([]Device, error)
	DefaultInputDevice() (Device, error)
	DefaultOutputDevice() (Device, error)
	OpenDuplex(in, out Device, sampleRate, blockSize int) (Stream, error)
	Close() error
}

// Stream is one open duplex session. Read blocks until a full input block of
// mono samples is available; Write blocks until the interleaved frame has
// been handed to the output device. Close must be safe on every exit path.
type Stream interface {
	Read(block []float32) error
	Write(frame []float32) error
	OutputChannels() int
	Close() error
}

// Validation errors
var (
	ErrNoDevice         = errors.New("no device selected")
	ErrSameDevice       = errors.New("input and output are the same device")
	ErrNotInputCapable  = errors.New("selected device has no input channels")
	ErrNotOutputCapable = errors.New("selected device has no output channels")
)

// Per-block stream glitches. The engine skips the block and keeps going.
var (
	ErrInputOverflow   = errors.New("input overflowed")
	ErrOutputUnderflow = errors.New("output underflowed")
)

// Validate checks a device pair before a stream is opened. Routing the
// cleaned signal back into the capture device would feed back, so identical
// devices are rejected outright.
func Validate(in, out Device) error {
	if in.Name == "" || out.Name == "" {
		return ErrNoDevice
	}
	if !in.IsInput() {
		return ErrNotInputCapable
	}
	if !out.IsOutput() {
		return ErrNotOutputCapable
	}
	if in.ID == out.ID {
		return ErrSameDevice
	}
	return nil
}

// Transient reports whether err is a per-block glitch (overflow/underrun)
// rather than a structural stream failure.
func Transient(err error) bool {
	return errors.Is(err, ErrInputOverflow) || errors.Is(err, ErrOutputUnderflow)
}

var virtualOutputKeywords = []string{"VB", "Virtual", "Cable", "VoiceMeeter", "BlackHole"}

// DefaultVirtualOutput picks the output device most likely to be a loopback
// device, so the cleaned feed can be consumed as a microphone elsewhere.
// Falls back to the first output-capable device.
func DefaultVirtualOutput(devices []Device) (Device, bool) {
	for _, d := range devices {
		if !d.IsOutput() {
			continue
		}
		for _, kw := range virtualOutputKeywords {
			if strings.Contains(d.Name, kw) {
				return d, true
			}
		}
	}
	for _, d := range devices {
		if d.IsOutput() {
			return d, true
		}
	}
	return Device{}, false
}
