package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/hashicorp/go-multierror"
)

type portAudioBackend struct{}

// NewPortAudio initializes PortAudio and returns a Backend over it.
func NewPortAudio() (Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioBackend{}, nil
}

func (b *portAudioBackend) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}
	return devices, nil
}

func (b *portAudioBackend) DefaultInputDevice() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default input device: %w", err)
	}
	return b.deviceByInfo(info)
}

func (b *portAudioBackend) DefaultOutputDevice() (Device, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default output device: %w", err)
	}
	return b.deviceByInfo(info)
}

func (b *portAudioBackend) deviceByInfo(info *portaudio.DeviceInfo) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Name == info.Name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("device not found: %s", info.Name)
}

func (b *portAudioBackend) OpenDuplex(in, out Device, sampleRate, blockSize int) (Stream, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if in.ID < 0 || in.ID >= len(infos) {
		return nil, fmt.Errorf("input device %q is no longer present", in.Name)
	}
	if out.ID < 0 || out.ID >= len(infos) {
		return nil, fmt.Errorf("output device %q is no longer present", out.Name)
	}
	inInfo, outInfo := infos[in.ID], infos[out.ID]

	// Mono capture; the engine tiles the cleaned block across the output
	// channels. Cap at stereo, more channels buy nothing for a mic feed.
	outCh := outInfo.MaxOutputChannels
	if outCh > 2 {
		outCh = 2
	}
	if outCh < 1 {
		return nil, ErrNotOutputCapable
	}

	s := &paStream{
		in:    make([]float32, blockSize),
		out:   make([]float32, blockSize*outCh),
		outCh: outCh,
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inInfo,
			Channels: 1,
			Latency:  inInfo.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outInfo,
			Channels: outCh,
			Latency:  outInfo.DefaultHighOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: blockSize,
	}, s.in, s.out)
	if err != nil {
		return nil, fmt.Errorf("failed to open duplex stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start duplex stream: %w", err)
	}

	s.stream = stream
	return s, nil
}

func (b *portAudioBackend) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream *portaudio.Stream
	in     []float32
	out    []float32
	outCh  int
}

func (s *paStream) Read(block []float32) error {
	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return ErrInputOverflow
		}
		return err
	}
	copy(block, s.in)
	return nil
}

func (s *paStream) Write(frame []float32) error {
	copy(s.out, frame)
	if err := s.stream.Write(); err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return ErrOutputUnderflow
		}
		return err
	}
	return nil
}

func (s *paStream) OutputChannels() int { return s.outCh }

func (s *paStream) Close() error {
	var result *multierror.Error
	if err := s.stream.Stop(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.stream.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
