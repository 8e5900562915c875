package audio

import (
	"errors"
	"sync"
	"time"
)

// Dummy is an in-memory Backend used by tests and by anything that needs a
// device table without a sound card. It tracks open/close calls and can
// inject per-block and structural failures.
type Dummy struct {
	// ReadInterval paces Read so a dummy stream behaves like a real device
	// clock instead of spinning.
	ReadInterval time.Duration
	// WriteDelay stalls every Write, for backpressure scenarios.
	WriteDelay time.Duration
	// OpenErr, when set, makes OpenDuplex fail.
	OpenErr error
	// FailReadAfter makes Read return a structural error after this many
	// successful reads. Zero disables it.
	FailReadAfter int
	// TransientEvery makes every Nth Read report ErrInputOverflow. Zero
	// disables it.
	TransientEvery int
	// OutputChannelCount is the channel count reported by opened streams.
	OutputChannelCount int

	mu      sync.Mutex
	devices []Device
	opens   int
	closes  int
}

// NewDummy returns a Dummy backend exposing the given device table.
func NewDummy(devices ...Device) *Dummy {
	return &Dummy{
		ReadInterval:       time.Millisecond,
		OutputChannelCount: 1,
		devices:            devices,
	}
}

func (d *Dummy) Devices() ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Device, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

func (d *Dummy) DefaultInputDevice() (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.IsInput() {
			return dev, nil
		}
	}
	return Device{}, errors.New("no input device available")
}

func (d *Dummy) DefaultOutputDevice() (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.IsOutput() {
			return dev, nil
		}
	}
	return Device{}, errors.New("no output device available")
}

func (d *Dummy) OpenDuplex(in, out Device, sampleRate, blockSize int) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opens++
	return &dummyStream{d: d}, nil
}

func (d *Dummy) Close() error { return nil }

// Opens returns how many streams have been opened.
func (d *Dummy) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns how many streams have been closed.
func (d *Dummy) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type dummyStream struct {
	d      *Dummy
	reads  int
	closed bool
}

func (s *dummyStream) Read(block []float32) error {
	time.Sleep(s.d.ReadInterval)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.reads++
	if s.d.TransientEvery > 0 && s.reads%s.d.TransientEvery == 0 {
		return ErrInputOverflow
	}
	if s.d.FailReadAfter > 0 && s.reads > s.d.FailReadAfter {
		return errors.New("device disconnected")
	}
	for i := range block {
		block[i] = 0.25
	}
	return nil
}

func (s *dummyStream) Write(frame []float32) error {
	time.Sleep(s.d.WriteDelay)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	return nil
}

func (s *dummyStream) OutputChannels() int { return s.d.OutputChannelCount }

func (s *dummyStream) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.d.closes++
	return nil
}
