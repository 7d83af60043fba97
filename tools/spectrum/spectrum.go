/*
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */

// Package spectrum computes the per bin signal and noise power of a buffer.
package spectrum

import (
	"math"
	"math/cmplx"

	"github.com/google-research/cochlea/tools/signals"
	"github.com/mjibson/go-dsp/fft"
)

// noiseFloor replaces non positive noise powers before conversion to dB.
const noiseFloor = 1e-20

// S is the spectrum of a buffer.
type S struct {
	Coeffs []complex128 `json:"-" proto:"-"`
	// SignalPower is the power of the sine matching each bin.
	SignalPower []signals.DB
	// NoisePower is the power of everything but the sine matching each bin.
	NoisePower []signals.DB
	BinWidth   signals.Hz
	Rate       signals.Hz
}

// PeakSNR returns the frequency and level of the bin with the highest signal to noise ratio.
func (s *S) PeakSNR() (signals.Hz, signals.DB) {
	peakF := signals.Hz(-1)
	peakSNR := signals.DB(math.Inf(-1))
	for bin := 1; bin < len(s.SignalPower); bin++ {
		if snr := s.SignalPower[bin] - s.NoisePower[bin]; snr > peakSNR {
			peakSNR = snr
			peakF = signals.Hz(bin) * s.BinWidth
		}
	}
	return peakF, peakSNR
}

// ComputeSignalPower computes only the signal power of the buffer.
func ComputeSignalPower(buffer signals.Float64Slice, rate signals.Hz) *S {
	spec := &S{
		BinWidth: rate / signals.Hz(len(buffer)),
		Rate:     rate,
		Coeffs:   fft.FFTReal(buffer),
	}
	halfCoefficients := len(spec.Coeffs) / 2
	invBuffer := 1.0 / float64(len(buffer))

	spec.SignalPower = make([]signals.DB, halfCoefficients)
	for bin := range spec.SignalPower {
		if bin == 0 {
			continue
		}
		gain := cmplx.Abs(spec.Coeffs[bin]) * invBuffer * 2
		spec.SignalPower[bin] = signals.Power(0.5 * gain * gain).DB()
	}
	return spec
}

// Compute computes the signal and noise power of the buffer.
func Compute(buffer signals.Float64Slice, rate signals.Hz) *S {
	spec := ComputeSignalPower(buffer, rate)

	halfCoefficients := len(spec.Coeffs) / 2
	invBuffer := 1.0 / float64(len(buffer))
	totalMean := real(spec.Coeffs[0]) * invBuffer

	totalSquares := 0.0
	squares := make([]float64, len(spec.Coeffs))
	for bin, coeff := range spec.Coeffs {
		square := (real(coeff)*real(coeff) + imag(coeff)*imag(coeff)) * invBuffer
		totalSquares += square
		squares[bin] = square
	}
	spec.NoisePower = make([]signals.DB, halfCoefficients)
	for bin := range spec.NoisePower {
		if bin == 0 {
			continue
		}
		// Parseval: the power outside the bin and its mirror, minus the DC component.
		noisePower := (totalSquares-squares[bin]-squares[len(spec.Coeffs)-bin])*invBuffer - totalMean*totalMean
		if noisePower <= 0 {
			noisePower = noiseFloor
		}
		spec.NoisePower[bin] = signals.Power(noisePower).DB()
	}
	return spec
}
