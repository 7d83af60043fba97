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

// Ear is a single channel cochlea: a CAR cascade, its hair cells and AGC loop.
//
// The coefficients are shared and never modified, the state is owned by the Ear.
// An Ear is not safe for concurrent use, but separate Ears sharing coefficients are.
type Ear struct {
	numChannels int

	carCoeffs CARCoeffs
	ihcCoeffs IHCCoeffs
	agcCoeffs []AGCCoeffs

	car CARState
	ihc IHCState
	agc []AGCState

	openLoop  bool
	undamping []float64
	newG      []float64

	err error
}

// NewEar returns an Ear at rest using the coefficients.
func NewEar(coeffs *Coefficients) (*Ear, error) {
	e := &Ear{}
	if err := e.Init(coeffs.NumChannels(), coeffs.CAR, coeffs.IHC, coeffs.AGC); err != nil {
		return nil, err
	}
	return e, nil
}

// Init (re)configures the Ear with coefficients and puts it at rest.
func (e *Ear) Init(numChannels int, car CARCoeffs, ihc IHCCoeffs, agc []AGCCoeffs) error {
	if numChannels < 1 {
		return configErrorf("%v channels", numChannels)
	}
	for name, vec := range map[string][]float64{
		"R1":             car.R1,
		"A0":             car.A0,
		"C0":             car.C0,
		"H":              car.H,
		"G0":             car.G0,
		"ZR":             car.ZR,
		"UndampingRange": car.UndampingRange,
	} {
		if len(vec) != numChannels {
			return configErrorf("CAR coefficient %v has %v values for %v channels", name, len(vec), numChannels)
		}
	}
	if len(agc) < 1 {
		return configErrorf("no AGC stages")
	}
	for stage, c := range agc {
		if c.Decimation < 1 {
			return configErrorf("AGC stage %v has decimation %v", stage, c.Decimation)
		}
	}
	e.numChannels = numChannels
	e.carCoeffs = car
	e.ihcCoeffs = ihc
	e.agcCoeffs = agc
	e.car = newCARState(numChannels)
	e.ihc = newIHCState(numChannels)
	e.agc = make([]AGCState, len(agc))
	for stage := range e.agc {
		e.agc[stage] = newAGCState(numChannels)
	}
	e.undamping = make([]float64, numChannels)
	e.newG = make([]float64, numChannels)
	e.Reset()
	return nil
}

// Reset puts the Ear at rest and clears any error.
func (e *Ear) Reset() {
	e.car.reset(&e.carCoeffs)
	e.ihc.reset(&e.ihcCoeffs)
	for stage := range e.agc {
		e.agc[stage].reset()
	}
	e.err = nil
}

// SetOpenLoop makes the AGC keep updating its memory without changing the CAR damping.
// Opening the loop freezes the damping at its current value.
func (e *Ear) SetOpenLoop(openLoop bool) {
	e.openLoop = openLoop
	if openLoop {
		for ch := range e.car.DZB {
			e.car.DZB[ch] = 0
			e.car.DG[ch] = 0
		}
	}
}

// OpenLoop returns whether the AGC loop is open.
func (e *Ear) OpenLoop() bool {
	return e.openLoop
}

// Err returns the error that stopped the Ear, if any.
func (e *Ear) Err() error {
	return e.err
}

// CARStep runs the cascade on one input sample. The result is in CAROut.
func (e *Ear) CARStep(sample float64) error {
	if e.err != nil {
		return e.err
	}
	e.err = e.car.step(&e.carCoeffs, sample)
	return e.err
}

// IHCStep runs the hair cells on the cascade output. The result is in IHCOut.
func (e *Ear) IHCStep(carOut []float64) error {
	if e.err != nil {
		return e.err
	}
	if len(carOut) != e.numChannels {
		return configErrorf("%v CAR outputs for %v channels", len(carOut), e.numChannels)
	}
	e.err = e.ihc.step(&e.ihcCoeffs, carOut)
	return e.err
}

// AGCStep feeds the hair cell output to the AGC and returns whether its
// finest stage updated. An update closes the loop unless it is open.
// Input of the wrong length stops the Ear with ErrConfiguration, see Err.
func (e *Ear) AGCStep(ihcOut []float64) bool {
	if e.err != nil {
		return false
	}
	if len(ihcOut) != e.numChannels {
		e.err = configErrorf("%v hair cell outputs for %v channels", len(ihcOut), e.numChannels)
		return false
	}
	if !agcStep(e.agcCoeffs, e.agc, ihcOut) {
		return false
	}
	for ch, v := range e.agc[0].Memory {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.err = instabilityErrorf("channel %v has AGC memory %v", ch, v)
			return false
		}
	}
	if !e.openLoop {
		e.CloseAGCLoop()
	}
	return true
}

// CloseAGCLoop sets DZB and DG so that damping and stage gains reach the
// values requested by the stage 0 AGC memory over the next stage 0 decimation period.
func (e *Ear) CloseAGCLoop() {
	decim := float64(e.agcCoeffs[0].Decimation)
	for ch, v := range e.agc[0].Memory {
		e.undamping[ch] = 1 - v
	}
	e.carCoeffs.StageGain(e.undamping, e.newG)
	for ch := range e.undamping {
		e.car.DZB[ch] = (e.carCoeffs.UndampingRange[ch]*e.undamping[ch] - e.car.ZB[ch]) / decim
		e.car.DG[ch] = (e.newG[ch] - e.car.G[ch]) / decim
	}
	if e.openLoop {
		for ch := range e.car.DZB {
			e.car.DZB[ch] = 0
			e.car.DG[ch] = 0
		}
	}
}

// NumChannels returns the number of channels of the Ear.
func (e *Ear) NumChannels() int {
	return e.numChannels
}

// CAROut returns the cascade output of the last step.
func (e *Ear) CAROut() []float64 {
	return e.car.ZY
}

// IHCOut returns the hair cell output of the last step.
func (e *Ear) IHCOut() []float64 {
	return e.ihc.Out
}

// ZA returns the delayed cascade memory used to estimate velocity.
func (e *Ear) ZA() []float64 {
	return e.car.ZA
}

// ZB returns the current undamping of each channel.
func (e *Ear) ZB() []float64 {
	return e.car.ZB
}

// G returns the current stage gains.
func (e *Ear) G() []float64 {
	return e.car.G
}

// DZB returns the per sample undamping increments.
func (e *Ear) DZB() []float64 {
	return e.car.DZB
}

// DG returns the per sample stage gain increments.
func (e *Ear) DG() []float64 {
	return e.car.DG
}

// ZRCoeffs returns the damping scale of each channel.
func (e *Ear) ZRCoeffs() []float64 {
	return e.carCoeffs.ZR
}

// CARState returns the cascade state.
func (e *Ear) CARState() *CARState {
	return &e.car
}

// IHCState returns the hair cell state.
func (e *Ear) IHCState() *IHCState {
	return &e.ihc
}

// AGCNumStages returns the number of AGC stages.
func (e *Ear) AGCNumStages() int {
	return len(e.agc)
}

// AGCDecimPhase returns how many inputs an AGC stage has accumulated since its last update.
func (e *Ear) AGCDecimPhase(stage int) int {
	return e.agc[stage].DecimPhase
}

// AGCDecimation returns the decimation factor of an AGC stage.
func (e *Ear) AGCDecimation(stage int) int {
	return e.agcCoeffs[stage].Decimation
}

// AGCMixCoeff returns the cross ear mixing coefficient of an AGC stage.
func (e *Ear) AGCMixCoeff(stage int) float64 {
	return e.agcCoeffs[stage].MixCoeff
}

// AGCMemory returns the memory of an AGC stage.
func (e *Ear) AGCMemory(stage int) []float64 {
	return e.agc[stage].Memory
}

// SetAGCMemory replaces the memory of an AGC stage.
func (e *Ear) SetAGCMemory(stage int, values []float64) error {
	if stage < 0 || stage >= len(e.agc) {
		return configErrorf("AGC stage %v of %v", stage, len(e.agc))
	}
	return setVector("AGC memory", e.agc[stage].Memory, values)
}

// SetDZBMemory replaces the per sample undamping increments.
func (e *Ear) SetDZBMemory(values []float64) error {
	return setVector("DZB memory", e.car.DZB, values)
}

// SetDGMemory replaces the per sample stage gain increments.
func (e *Ear) SetDGMemory(values []float64) error {
	return setVector("DG memory", e.car.DG, values)
}

func setVector(name string, dst, src []float64) error {
	if len(src) != len(dst) {
		return configErrorf("%v has %v channels, got %v values", name, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}
