// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chroma

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freqHz float64, sampleRate, numSamples int) []float64 {
	samples := make([]float64, numSamples)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / float64(sampleRate))
	}
	return samples
}

func TestCompute_A4SineProducesBin9(t *testing.T) {
	const sampleRate = 44100
	samples := sineWave(440.0, sampleRate, sampleRate*2)

	c := Compute(samples, sampleRate)

	maxBin := 0
	for i := 1; i < 12; i++ {
		if c[i] > c[maxBin] {
			maxBin = i
		}
	}
	assert.Equal(t, 9, maxBin, "A4 (440Hz) should be the dominant chroma bin")
}

func TestCompute_SilentInputYieldsZeros(t *testing.T) {
	samples := make([]float64, 44100)
	c := Compute(samples, 44100)
	for i, v := range c {
		assert.Zero(t, v, "bin %d should be zero for silence", i)
	}
}

func TestCompute_L1Normalized(t *testing.T) {
	const sampleRate = 44100
	samples := sineWave(440.0, sampleRate, sampleRate*2)
	c := Compute(samples, sampleRate)

	sum := 0.0
	for _, v := range c {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestEstimateKey_CMajorScale(t *testing.T) {
	const sampleRate = 44100
	noteFreqs := []float64{261.63, 293.66, 329.63, 349.23, 392.00, 440.00, 493.88, 523.25} // C4..C5
	var samples []float64
	for _, f := range noteFreqs {
		samples = append(samples, sineWave(f, sampleRate, sampleRate/2)...)
	}

	c := Compute(samples, sampleRate)
	estimate := EstimateKey(c)

	assert.Equal(t, "C", estimate.Key)
	assert.Equal(t, "major", estimate.Mode)
	assert.Equal(t, "8B", estimate.Camelot)
	assert.Greater(t, estimate.Confidence, 0.5)
}

func TestEstimateKey_TonalBeatsNoise(t *testing.T) {
	const sampleRate = 44100
	tonal := sineWave(440.0, sampleRate, sampleRate*2)
	tonalEstimate := EstimateKey(Compute(tonal, sampleRate))

	rng := rand.New(rand.NewSource(42))
	noise := make([]float64, sampleRate*2)
	for i := range noise {
		noise[i] = rng.Float64()*2 - 1
	}
	noiseEstimate := EstimateKey(Compute(noise, sampleRate))

	assert.Greater(t, tonalEstimate.Confidence, noiseEstimate.Confidence+0.05)
}

func TestCamelotMapping_CoversAllKeys(t *testing.T) {
	for _, key := range noteNames {
		require.NotEmpty(t, camelot(key, "major"))
		require.NotEmpty(t, camelot(key, "minor"))
	}
}
