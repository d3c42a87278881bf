// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dsp provides the shared signal-processing primitives (windowing,
// FFT, STFT framing) used by the chromagram/key estimator (C5) and the
// tempo estimator (C6). No library in the retrieved corpus offers FFT or
// DSP primitives (the one complex-math dependency present anywhere in the
// pack, remyoudompheng/bigfft, is a big-integer multiplication helper, not
// a signal-processing FFT) — this package is therefore intentionally
// stdlib-only, built on the math package.
package dsp

import "math"

// HannWindow returns a Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// FFT computes the discrete Fourier transform of in (length must be a
// power of two) using an iterative radix-2 Cooley-Tukey algorithm. The
// input slice is not modified.
func FFT(in []complex128) []complex128 {
	n := len(in)
	out := make([]complex128, n)
	copy(out, in)
	fftInPlace(out)
	return out
}

func fftInPlace(a []complex128) {
	n := len(a)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j &^= bit
		}
		j |= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wlen := complex(math.Cos(angle), math.Sin(angle))
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			half := length / 2
			for k := 0; k < half; k++ {
				u := a[i+k]
				v := a[i+k+half] * w
				a[i+k] = u + v
				a[i+k+half] = u - v
				w *= wlen
			}
		}
	}
}

// NextPowerOfTwo rounds n up to the nearest power of two, or returns n
// unchanged if it already is one.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Frames splits samples into overlapping windows of the given size and
// hop, applying window (element-wise) to each frame. Frames that would
// run past the end of samples are zero-padded.
func Frames(samples []float64, windowSize, hop int, window []float64) [][]float64 {
	if windowSize <= 0 || hop <= 0 || len(samples) == 0 {
		return nil
	}
	var frames [][]float64
	for start := 0; start < len(samples); start += hop {
		frame := make([]float64, windowSize)
		for i := 0; i < windowSize; i++ {
			idx := start + i
			if idx < len(samples) {
				frame[i] = samples[idx] * window[i]
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

// Magnitude returns |FFT(frame)| for each of the first n/2+1 bins (the
// non-redundant half-spectrum of a real input, zero-padded to a power of
// two before transforming).
func Magnitude(frame []float64) []float64 {
	n := NextPowerOfTwo(len(frame))
	complexFrame := make([]complex128, n)
	for i, v := range frame {
		complexFrame[i] = complex(v, 0)
	}
	spectrum := FFT(complexFrame)
	bins := n/2 + 1
	mag := make([]float64, bins)
	for i := 0; i < bins; i++ {
		mag[i] = cmplxAbs(spectrum[i])
	}
	return mag
}

func cmplxAbs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}
