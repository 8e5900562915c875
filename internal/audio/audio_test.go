package audio

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidate(t *testing.T) {
	mic := Device{ID: 0, Name: "USB Microphone", MaxInputChannels: 1}
	cable := Device{ID: 1, Name: "VB-Cable", MaxOutputChannels: 2}
	speakers := Device{ID: 2, Name: "Speakers", MaxOutputChannels: 2}

	tests := []struct {
		name    string
		in, out Device
		want    error
	}{
		{
			name: "valid pair",
			in:   mic,
			out:  cable,
			want: nil,
		},
		{
			name: "no input selected",
			in:   Device{},
			out:  cable,
			want: ErrNoDevice,
		},
		{
			name: "no output selected",
			in:   mic,
			out:  Device{},
			want: ErrNoDevice,
		},
		{
			name: "same device both ways",
			in:   Device{ID: 3, Name: "Headset", MaxInputChannels: 1, MaxOutputChannels: 2},
			out:  Device{ID: 3, Name: "Headset", MaxInputChannels: 1, MaxOutputChannels: 2},
			want: ErrSameDevice,
		},
		{
			name: "output-only device as input",
			in:   speakers,
			out:  cable,
			want: ErrNotInputCapable,
		},
		{
			name: "input-only device as output",
			in:   mic,
			out:  Device{ID: 4, Name: "Line In", MaxInputChannels: 2},
			want: ErrNotOutputCapable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.in, tt.out)
			if !errors.Is(got, tt.want) {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultVirtualOutput(t *testing.T) {
	mic := Device{ID: 0, Name: "Built-in Microphone", MaxInputChannels: 2}
	speakers := Device{ID: 1, Name: "Built-in Output", MaxOutputChannels: 2}
	cable := Device{ID: 2, Name: "CABLE Input (VB-Audio Virtual Cable)", MaxOutputChannels: 2}

	dev, ok := DefaultVirtualOutput([]Device{mic, speakers, cable})
	if !ok || dev.ID != cable.ID {
		t.Errorf("expected the virtual cable to be picked, got %+v ok=%v", dev, ok)
	}

	// Without a virtual device, fall back to the first output
	dev, ok = DefaultVirtualOutput([]Device{mic, speakers})
	if !ok || dev.ID != speakers.ID {
		t.Errorf("expected fallback to first output, got %+v ok=%v", dev, ok)
	}

	// No outputs at all
	_, ok = DefaultVirtualOutput([]Device{mic})
	if ok {
		t.Error("expected no pick from an input-only device list")
	}

	// Empty device table stays empty, no panic, no pick
	_, ok = DefaultVirtualOutput(nil)
	if ok {
		t.Error("expected no pick from an empty device list")
	}
}

func TestTransientClassification(t *testing.T) {
	if !Transient(ErrInputOverflow) {
		t.Error("input overflow should be transient")
	}
	if !Transient(fmt.Errorf("block 42: %w", ErrOutputUnderflow)) {
		t.Error("wrapped underflow should be transient")
	}
	if Transient(errors.New("device disconnected")) {
		t.Error("structural errors must not be classified transient")
	}
	if Transient(nil) {
		t.Error("nil is not transient")
	}
}

func TestDummyTracksOpenClose(t *testing.T) {
	mic := Device{ID: 0, Name: "Test Mic", MaxInputChannels: 1}
	cable := Device{ID: 1, Name: "Test Cable", MaxOutputChannels: 1}
	d := NewDummy(mic, cable)

	stream, err := d.OpenDuplex(mic, cable, 44100, 64)
	if err != nil {
		t.Fatalf("OpenDuplex() returned error: %v", err)
	}
	if d.Opens() != 1 {
		t.Errorf("expected 1 open, got %d", d.Opens())
	}

	block := make([]float32, 64)
	if err := stream.Read(block); err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	if block[0] == 0 {
		t.Error("expected the dummy to fill the block with samples")
	}
	if err := stream.Write(block); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	// Closing twice must not double-count
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
	if d.Closes() != 1 {
		t.Errorf("expected 1 close, got %d", d.Closes())
	}

	if err := stream.Read(block); err == nil {
		t.Error("expected Read on a closed stream to fail")
	}
}
