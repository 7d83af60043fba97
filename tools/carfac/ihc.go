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

// IHCState is the mutable state of the inner hair cells.
type IHCState struct {
	// Out is the (non negative) output of each channel, also used to drive the AGC.
	Out       []float64
	ACCoupler []float64
	Cap1      []float64
	Cap2      []float64
	LPF1      []float64
	LPF2      []float64
}

func newIHCState(numChannels int) IHCState {
	return IHCState{
		Out:       make([]float64, numChannels),
		ACCoupler: make([]float64, numChannels),
		Cap1:      make([]float64, numChannels),
		Cap2:      make([]float64, numChannels),
		LPF1:      make([]float64, numChannels),
		LPF2:      make([]float64, numChannels),
	}
}

// reset puts the hair cells at their zero signal equilibrium.
func (s *IHCState) reset(c *IHCCoeffs) {
	for ch := range s.Out {
		s.Out[ch] = 0
		s.ACCoupler[ch] = 0
		s.Cap1[ch] = c.RestCap1
		s.Cap2[ch] = c.RestCap2
		s.LPF1[ch] = c.RestOutput
		s.LPF2[ch] = c.RestOutput
	}
}

func (s *IHCState) step(c *IHCCoeffs, carOut []float64) error {
	for ch, x := range carOut {
		acDiff := x - s.ACCoupler[ch]
		s.ACCoupler[ch] += c.ACCoeff * acDiff

		var out float64
		if c.JustHalfWaveRectify {
			out = math.Min(2, math.Max(0, acDiff))
		} else {
			conductance := detect(acDiff)
			if c.OneCapacitor {
				out = conductance * s.Cap1[ch]
				s.Cap1[ch] = s.Cap1[ch] - out*c.Out1Rate + (1-s.Cap1[ch])*c.In1Rate
			} else {
				out = conductance * s.Cap2[ch]
				s.Cap1[ch] = s.Cap1[ch] - (s.Cap1[ch]-s.Cap2[ch])*c.Out1Rate + (1-s.Cap1[ch])*c.In1Rate
				s.Cap2[ch] = s.Cap2[ch] - out*c.Out2Rate + (s.Cap1[ch]-s.Cap2[ch])*c.In2Rate
			}
			out *= c.OutputGain
			s.LPF1[ch] += c.LPFCoeff * (out - s.LPF1[ch])
			s.LPF2[ch] += c.LPFCoeff * (s.LPF1[ch] - s.LPF2[ch])
			// Adaptation can pull the smoothed output below rest, which is reported as silence.
			out = math.Max(0, s.LPF2[ch]-c.RestOutput)
		}
		if math.IsNaN(out) || math.IsInf(out, 0) {
			return instabilityErrorf("channel %v has IHC output %v for CAR output %v", ch, out, x)
		}
		s.Out[ch] = out
	}
	return nil
}
