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
package carfac

import (
	"math"
)

// CARState is the mutable state of the resonator cascade.
type CARState struct {
	// Z1 and Z2 are the two resonator memories of each channel.
	Z1 []float64
	Z2 []float64
	// ZA is Z2 delayed one sample, used to estimate velocity.
	ZA []float64
	// ZB is the current undamping, between 0 and UndampingRange.
	ZB []float64
	// ZY is the output of each channel.
	ZY []float64
	// G is the current stage gain.
	G []float64
	// DZB and DG are the per sample increments of ZB and G set when the AGC loop is closed.
	DZB []float64
	DG  []float64
}

func newCARState(numChannels int) CARState {
	return CARState{
		Z1:  make([]float64, numChannels),
		Z2:  make([]float64, numChannels),
		ZA:  make([]float64, numChannels),
		ZB:  make([]float64, numChannels),
		ZY:  make([]float64, numChannels),
		G:   make([]float64, numChannels),
		DZB: make([]float64, numChannels),
		DG:  make([]float64, numChannels),
	}
}

// reset puts the cascade at rest, fully undamped.
func (s *CARState) reset(c *CARCoeffs) {
	for ch := range s.Z1 {
		s.Z1[ch] = 0
		s.Z2[ch] = 0
		s.ZA[ch] = 0
		s.ZY[ch] = 0
		s.DZB[ch] = 0
		s.DG[ch] = 0
		s.ZB[ch] = c.UndampingRange[ch]
		s.G[ch] = c.G0[ch]
	}
}

// ohcNonlinearity maps the scaled and offset velocity to the fraction of undamping kept.
func ohcNonlinearity(v float64) float64 {
	return 1 / (1 + v*v)
}

// step advances the cascade one sample.
func (s *CARState) step(c *CARCoeffs, input float64) error {
	for ch := range s.Z1 {
		s.G[ch] += s.DG[ch]
		s.ZB[ch] += s.DZB[ch]

		// The velocity is from the previous sample, so the nonlinearity lags by one sample.
		velocity := s.Z2[ch] - s.ZA[ch]
		nlf := ohcNonlinearity(c.VelocityScale*velocity + c.VOffset)
		r := c.R1[ch] - c.UndampingRange[ch] + s.ZB[ch]*nlf
		if !(r > 0 && r < 1) {
			return instabilityErrorf("channel %v has pole radius %v", ch, r)
		}
		s.ZA[ch] = s.Z2[ch]

		z1 := r * (c.A0[ch]*s.Z1[ch] - c.C0[ch]*s.Z2[ch])
		s.Z2[ch] = r * (c.C0[ch]*s.Z1[ch] + c.A0[ch]*s.Z2[ch])
		s.Z1[ch] = z1
		s.ZY[ch] = c.H[ch] * s.Z2[ch]
	}
	// Each channel's input is the output of the previous channel for this very
	// sample, so this loop must stay sequential.
	inOut := input
	for ch := range s.Z1 {
		s.Z1[ch] += inOut
		inOut = s.G[ch] * (inOut + s.ZY[ch])
		if math.IsNaN(inOut) || math.IsInf(inOut, 0) {
			return instabilityErrorf("channel %v has output %v", ch, inOut)
		}
		s.ZY[ch] = inOut
	}
	return nil
}
