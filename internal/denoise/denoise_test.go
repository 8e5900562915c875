package denoise

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpectralGateRejectsBadBlockSizes(t *testing.T) {
	for _, size := range []int{0, -1, 16, 33, 1023} {
		_, err := NewSpectralGate(size, Config{})
		assert.Error(t, err, "block size %d", size)
	}
	for _, size := range []int{32, 64, 256, 1024, 4096} {
		_, err := NewSpectralGate(size, Config{})
		assert.NoError(t, err, "block size %d", size)
	}
}

func TestProcessPreservesShape(t *testing.T) {
	for _, size := range []int{32, 64, 256, 1024} {
		gate, err := NewSpectralGate(size, Config{})
		require.NoError(t, err)

		block := make([]float32, size)
		for i := range block {
			block[i] = float32(math.Sin(float64(i) * 0.1))
		}
		out := gate.Process(block)
		assert.Len(t, out, size, "block size %d", size)
	}
}

func TestProcessMismatchedBlockPassesThrough(t *testing.T) {
	gate, err := NewSpectralGate(256, Config{})
	require.NoError(t, err)

	block := []float32{0.5, -0.5, 0.25}
	out := gate.Process(block)
	assert.Equal(t, []float32{0.5, -0.5, 0.25}, out)
}

func TestSilenceStaysSilent(t *testing.T) {
	gate, err := NewSpectralGate(256, Config{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		block := make([]float32, 256)
		out := gate.Process(block)
		for j, v := range out {
			require.Zero(t, v, "block %d sample %d", i, j)
		}
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	const size = 256
	a, err := NewSpectralGate(size, Config{})
	require.NoError(t, err)
	b, err := NewSpectralGate(size, Config{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	input := make([][]float32, 20)
	for i := range input {
		input[i] = make([]float32, size)
		for j := range input[i] {
			input[i][j] = rng.Float32()*2 - 1
		}
	}

	for i := range input {
		blockA := append([]float32(nil), input[i]...)
		blockB := append([]float32(nil), input[i]...)
		assert.Equal(t, a.Process(blockA), b.Process(blockB), "block %d", i)
	}
}

func TestResetClearsAdaptiveState(t *testing.T) {
	const size = 256
	gate, err := NewSpectralGate(size, Config{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	feed := func() [][]float32 {
		out := make([][]float32, 10)
		for i := range out {
			block := make([]float32, size)
			for j := range block {
				block[j] = rng.Float32()*2 - 1
			}
			out[i] = gate.Process(block)
		}
		return out
	}

	first := feed()
	gate.Reset()
	rng = rand.New(rand.NewSource(3))
	second := feed()

	assert.Equal(t, first, second)
}

func TestSustainedNoiseIsAttenuated(t *testing.T) {
	const (
		size   = 256
		warmup = 40
		tested = 10
	)
	gate, err := NewSpectralGate(size, Config{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var inEnergy, outEnergy float64
	for i := 0; i < warmup+tested; i++ {
		block := make([]float32, size)
		for j := range block {
			block[j] = (rng.Float32()*2 - 1) * 0.1
		}
		measured := i >= warmup
		if measured {
			inEnergy += rms(block)
		}
		out := gate.Process(block)
		if measured {
			outEnergy += rms(out)
		}
	}

	require.Positive(t, inEnergy)
	assert.Less(t, outEnergy, 0.6*inEnergy,
		"stationary noise should be attenuated once the floor is learned")
}

func TestPassThroughIsIdentity(t *testing.T) {
	var p PassThrough
	block := []float32{0.1, -0.2, 0.3}
	out := p.Process(block)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, out)
	p.Reset()
}

func rms(block []float32) float64 {
	var sum float64
	for _, v := range block {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(block)))
}
