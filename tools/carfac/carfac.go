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

// Package carfac implements the CARFAC (Cascade of Asymmetric Resonators
// with Fast-Acting Compression) model of the cochlea.
package carfac

import (
	"fmt"
)

// DefaultSegmentSeconds is the length of the segment NumSamples reports before the first Run.
const DefaultSegmentSeconds = 0.25

// CF is a model of one or more coupled ears.
//
// Input buffers are interleaved, with one sample per ear per frame.
// Outputs are ordered [sample][channel] and cover the last Run or RunOpen.
type CF interface {
	// Run processes a segment with the AGC loop closed, unless the model
	// was created with OpenLoop.
	Run(buffer []float32) error
	// RunOpen processes a segment with the AGC loop open.
	RunOpen(buffer []float32) error
	// Reset puts all ears at rest.
	Reset()
	// NAP returns the neural activity pattern of the first ear.
	NAP() ([]float32, error)
	// BM returns the basilar membrane displacement of the first ear.
	BM() ([]float32, error)
	EarNAP(ear int) ([]float32, error)
	EarBM(ear int) ([]float32, error)
	NumChannels() int
	// NumSamples returns the number of frames of the last segment, or the
	// default segment length before the first Run.
	NumSamples() int
	NumEars() int
	SampleRate() int
	Poles() []float32
	Coefficients() *Coefficients
	Ears() []*Ear
}

type carfac struct {
	numChannels int
	numSamples  int
	sampleRate  int
	poles       []float32
	openLoop    bool
	coeffs      *Coefficients
	ears        []*Ear
	nap         [][]float32
	bm          [][]float32
	ran         bool
}

func (c *carfac) NumChannels() int {
	return c.numChannels
}

func (c *carfac) NumSamples() int {
	return c.numSamples
}

func (c *carfac) NumEars() int {
	return len(c.ears)
}

func (c *carfac) SampleRate() int {
	return c.sampleRate
}

func (c *carfac) Poles() []float32 {
	return c.poles
}

func (c *carfac) Coefficients() *Coefficients {
	return c.coeffs
}

func (c *carfac) Ears() []*Ear {
	return c.ears
}

// New designs a model from the parameters.
func New(cfp CARFACParams) (CF, error) {
	if cfp.SampleRate <= 0 {
		return nil, configErrorf("sample rate %v", cfp.SampleRate)
	}
	coeffs, err := DesignDefault(cfp.Params(), float64(cfp.SampleRate))
	if err != nil {
		return nil, err
	}
	numEars := cfp.NumEars
	if numEars == 0 {
		numEars = 1
	}
	result, err := NewFromCoefficients(coeffs, numEars)
	if err != nil {
		return nil, err
	}
	result.(*carfac).openLoop = cfp.OpenLoop
	return result, nil
}

// NewFromCoefficients returns a model with numEars ears sharing coeffs.
func NewFromCoefficients(coeffs *Coefficients, numEars int) (CF, error) {
	if numEars < 1 {
		return nil, configErrorf("%v ears", numEars)
	}
	result := &carfac{
		numChannels: coeffs.NumChannels(),
		numSamples:  int(coeffs.SampleRate * DefaultSegmentSeconds),
		sampleRate:  int(coeffs.SampleRate),
		poles:       make([]float32, coeffs.NumChannels()),
		coeffs:      coeffs,
		ears:        make([]*Ear, numEars),
		nap:         make([][]float32, numEars),
		bm:          make([][]float32, numEars),
	}
	for idx, pole := range coeffs.PoleFrequencies {
		result.poles[idx] = float32(pole)
	}
	for idx := range result.ears {
		ear, err := NewEar(coeffs)
		if err != nil {
			return nil, err
		}
		result.ears[idx] = ear
	}
	return result, nil
}

func (c *carfac) Reset() {
	for _, ear := range c.ears {
		ear.Reset()
	}
}

func (c *carfac) RunOpen(buffer []float32) error {
	return c.run(buffer, true)
}

func (c *carfac) Run(buffer []float32) error {
	return c.run(buffer, c.openLoop)
}

func (c *carfac) run(buffer []float32, openLoop bool) error {
	numEars := len(c.ears)
	if len(buffer)%numEars != 0 {
		return configErrorf("buffer of %v samples isn't a whole number of frames of %v ears", len(buffer), numEars)
	}
	numSamples := len(buffer) / numEars
	for idx, ear := range c.ears {
		ear.SetOpenLoop(openLoop)
		if need := numSamples * c.numChannels; cap(c.nap[idx]) < need {
			c.nap[idx] = make([]float32, need)
			c.bm[idx] = make([]float32, need)
		} else {
			c.nap[idx] = c.nap[idx][:need]
			c.bm[idx] = c.bm[idx][:need]
		}
	}
	c.numSamples = numSamples
	c.ran = true
	for sample := 0; sample < numSamples; sample++ {
		updated := true
		for earIdx, ear := range c.ears {
			if err := ear.CARStep(float64(buffer[sample*numEars+earIdx])); err != nil {
				return fmt.Errorf("ear %v, sample %v: %w", earIdx, sample, err)
			}
			if err := ear.IHCStep(ear.CAROut()); err != nil {
				return fmt.Errorf("ear %v, sample %v: %w", earIdx, sample, err)
			}
			if !ear.AGCStep(ear.IHCOut()) {
				updated = false
				if err := ear.Err(); err != nil {
					return fmt.Errorf("ear %v, sample %v: %w", earIdx, sample, err)
				}
			}
			offset := sample * c.numChannels
			nap := c.nap[earIdx][offset : offset+c.numChannels]
			bm := c.bm[earIdx][offset : offset+c.numChannels]
			for ch, v := range ear.IHCOut() {
				nap[ch] = float32(v)
			}
			for ch, v := range ear.CAROut() {
				bm[ch] = float32(v)
			}
		}
		if updated && numEars > 1 {
			if err := CrossCouple(c.ears); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *carfac) output(name string, outputs [][]float32, ear int) ([]float32, error) {
	if ear < 0 || ear >= len(outputs) {
		return nil, fmt.Errorf("Unable to retrieve %v from CARFAC: no ear %v", name, ear)
	}
	if !c.ran {
		return nil, fmt.Errorf("Unable to retrieve %v from CARFAC: nothing has been run", name)
	}
	return append([]float32{}, outputs[ear]...), nil
}

func (c *carfac) NAP() ([]float32, error) {
	return c.EarNAP(0)
}

func (c *carfac) BM() ([]float32, error) {
	return c.EarBM(0)
}

func (c *carfac) EarNAP(ear int) ([]float32, error) {
	return c.output("NAP", c.nap, ear)
}

func (c *carfac) EarBM(ear int) ([]float32, error) {
	return c.output("BM", c.bm, ear)
}
