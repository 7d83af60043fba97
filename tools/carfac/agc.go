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

// Stages needing more FIR iterations than this are smoothed with a spatial IIR instead.
const maxFIRIterations = 3

// AGCState is the mutable state of one AGC stage.
type AGCState struct {
	// Memory is the smoothed, decimated detector output of the stage.
	Memory []float64
	// InputAccum accumulates the input between updates.
	InputAccum []float64
	// DecimPhase counts the inputs since the last update, modulo the decimation.
	DecimPhase int

	decimated []float64
	scratch   []float64
}

func newAGCState(numChannels int) AGCState {
	return AGCState{
		Memory:     make([]float64, numChannels),
		InputAccum: make([]float64, numChannels),
		decimated:  make([]float64, numChannels),
		scratch:    make([]float64, numChannels),
	}
}

func (s *AGCState) reset() {
	for ch := range s.Memory {
		s.Memory[ch] = 0
		s.InputAccum[ch] = 0
		s.decimated[ch] = 0
	}
	s.DecimPhase = 0
}

// agcStep feeds one sample of detector output to the stages, and returns
// whether stage 0 updated.
//
// Inputs travel fine to coarse, each stage averaging Decimation of its
// inputs before passing the average on. The stages that updated are then
// smoothed coarse to fine, so each finer stage sees the fresh memory of the
// coarser one.
func agcStep(coeffs []AGCCoeffs, states []AGCState, drive []float64) bool {
	in := drive
	scale := coeffs[0].DetectScale
	deepest := -1
	for stage := range coeffs {
		state := &states[stage]
		for ch, v := range in {
			state.InputAccum[ch] += scale * v
		}
		scale = 1
		state.DecimPhase = (state.DecimPhase + 1) % coeffs[stage].Decimation
		if state.DecimPhase != 0 {
			break
		}
		decim := float64(coeffs[stage].Decimation)
		for ch, v := range state.InputAccum {
			state.decimated[ch] = v / decim
			state.InputAccum[ch] = 0
		}
		deepest = stage
		in = state.decimated
	}
	for stage := deepest; stage >= 0; stage-- {
		c := &coeffs[stage]
		state := &states[stage]
		in := state.decimated
		if stage+1 < len(coeffs) {
			for ch, v := range states[stage+1].Memory {
				in[ch] += c.StageGain * v
			}
		}
		for ch, v := range in {
			state.Memory[ch] += c.Epsilon * (v - state.Memory[ch])
		}
		spatialSmooth(c, state.Memory, state.scratch)
	}
	return deepest >= 0
}

// spatialSmooth spreads the stage memory across neighbouring channels.
// Channels beyond the edges mirror the channels inside them.
func spatialSmooth(c *AGCCoeffs, memory, scratch []float64) {
	if c.SpatialIterations > maxFIRIterations {
		smoothDoubleExponential(c.PoleZ1, c.PoleZ2, memory)
		return
	}
	n := len(memory)
	fir := c.SpatialFIR
	for iter := 0; iter < c.SpatialIterations; iter++ {
		copy(scratch, memory)
		for ch := range memory {
			switch c.SpatialTaps {
			case 3:
				memory[ch] = fir[0]*scratch[mirrorChannel(ch-1, n)] + fir[1]*scratch[ch] + fir[2]*scratch[mirrorChannel(ch+1, n)]
			case 5:
				memory[ch] = fir[0]*(scratch[mirrorChannel(ch-2, n)]+scratch[mirrorChannel(ch-1, n)]) +
					fir[1]*scratch[ch] +
					fir[2]*(scratch[mirrorChannel(ch+1, n)]+scratch[mirrorChannel(ch+2, n)])
			}
		}
	}
}

// mirrorChannel maps a channel index outside [0, n) onto its mirror image across
// the nearest edge, so -1 reads channel 0 and -2 reads channel 1.
func mirrorChannel(idx, n int) int {
	if idx < 0 {
		idx = -idx - 1
	}
	if idx >= n {
		idx = 2*n - 1 - idx
	}
	if idx < 0 {
		return 0
	}
	return idx
}

// smoothDoubleExponential runs a one pole filter backward with pole z2 and
// then forward with pole z1, starting from a state estimated on the last channels.
func smoothDoubleExponential(z1, z2 float64, memory []float64) {
	n := len(memory)
	state := 0.0
	start := n - 11
	if start < 0 {
		start = 0
	}
	for ch := start; ch < n; ch++ {
		state += (1 - z1) * (memory[ch] - state)
	}
	for ch := n - 1; ch >= 0; ch-- {
		state += (1 - z2) * (memory[ch] - state)
		memory[ch] = state
	}
	for ch := 0; ch < n; ch++ {
		state += (1 - z1) * (memory[ch] - state)
		memory[ch] = state
	}
}
