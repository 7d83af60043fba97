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

// CARParams configures the cascade of asymmetric resonators.
type CARParams struct {
	// VelocityScale scales the velocity fed to the OHC nonlinearity.
	VelocityScale float64
	// VOffset offsets the velocity fed to the OHC nonlinearity, making it asymmetric.
	VOffset float64
	// MinZeta is the damping ratio floor, reached when the cochlea is fully undamped.
	MinZeta float64
	// MaxZeta is the damping ratio reached at full compression.
	MaxZeta float64
	// FirstPoleTheta is the angle (radians per sample) of the first, highest, pole.
	FirstPoleTheta float64
	// ZeroRatio is the ratio between the zero and pole frequencies of each stage.
	ZeroRatio float64
	// HighFDampingCompression flattens the damping increase near Nyquist.
	HighFDampingCompression float64
	// ERBPerStep is the channel spacing along the cochlear map, in ERBs.
	ERBPerStep float64
	// MinPoleHz is the lowest pole frequency allowed in the channel map.
	MinPoleHz float64
	// ERBBreakFreq is the corner frequency of the ERB scale.
	ERBBreakFreq float64
	// ERBQ is the asymptotic quality factor of the ERB scale.
	ERBQ float64
}

// IHCParams configures the inner hair cell transduction.
type IHCParams struct {
	// JustHalfWaveRectify replaces the capacitor model with a clipped half wave rectifier.
	JustHalfWaveRectify bool
	// OneCapacitor selects the single-capacitor adaptation model instead of the two-capacitor one.
	OneCapacitor bool
	// TauLPF is the time constant of the two output smoothing filters.
	TauLPF float64
	// Tau1Out is the depletion time constant of the first capacitor.
	Tau1Out float64
	// Tau1In is the recharge time constant of the first capacitor.
	Tau1In float64
	// Tau2Out is the depletion time constant of the second capacitor.
	Tau2Out float64
	// Tau2In is the recharge time constant of the second capacitor.
	Tau2In float64
	// ACCornerHz is the corner of the high pass filter in front of the detector.
	ACCornerHz float64
}

// AGCParams configures the automatic gain control loop.
//
// Every per stage slice must have NumStages elements, except Decimation which
// may be empty to have it derived from TimeConstants.
type AGCParams struct {
	NumStages int
	// StageGain weights the memory of a coarser stage when it is mixed into the finer one.
	StageGain float64
	// Decimation of each stage, relative to the previous stage.
	Decimation []int
	// TimeConstants of each stage, in seconds.
	TimeConstants []float64
	// AGC1Scales and AGC2Scales define the spatial spread, in channels, of each stage.
	AGC1Scales []float64
	AGC2Scales []float64
	// MixCoeff is the strength of the cross ear coupling.
	MixCoeff float64
}

// Params is the full configuration of a model.
type Params struct {
	CAR CARParams
	IHC IHCParams
	AGC AGCParams
}

func geometric(start, mul float64, n int) []float64 {
	result := make([]float64, n)
	for idx := range result {
		result[idx] = start * math.Pow(mul, float64(idx))
	}
	return result
}

// DefaultParams returns the parameters of the published CARFAC model.
func DefaultParams() Params {
	return Params{
		CAR: CARParams{
			VelocityScale:           0.1,
			VOffset:                 0.04,
			MinZeta:                 0.1,
			MaxZeta:                 0.35,
			FirstPoleTheta:          0.85 * math.Pi,
			ZeroRatio:               math.Sqrt2,
			HighFDampingCompression: 0.5,
			ERBPerStep:              0.5,
			MinPoleHz:               30,
			ERBBreakFreq:            165.3,
			ERBQ:                    1000 / (24.7 * 4.37),
		},
		IHC: IHCParams{
			OneCapacitor: true,
			TauLPF:       0.000080,
			Tau1Out:      0.0005,
			Tau1In:       0.010,
			Tau2Out:      0.0025,
			Tau2In:       0.005,
			ACCornerHz:   20,
		},
		AGC: AGCParams{
			NumStages:     4,
			StageGain:     2,
			Decimation:    []int{8, 2, 2, 2},
			TimeConstants: geometric(0.002, 4, 4),
			AGC1Scales:    geometric(1.0, math.Sqrt2, 4),
			AGC2Scales:    geometric(1.65, math.Sqrt2, 4),
			MixCoeff:      0.5,
		},
	}
}

// CARFACParams configures a CF. Nil pointers mean the default value.
type CARFACParams struct {
	SampleRate int
	// NumEars is the number of interleaved audio channels, 0 means 1.
	NumEars int
	// OpenLoop makes Run behave like RunOpen.
	OpenLoop bool

	VelocityScale           *float64
	VOffset                 *float64
	MinZeta                 *float64
	MaxZeta                 *float64
	ZeroRatio               *float64
	HighFDampingCompression *float64
	ERBPerStep              *float64
	ERBBreakFreq            *float64
	ERBQ                    *float64

	TauLPF     *float64
	Tau1Out    *float64
	Tau1In     *float64
	ACCornerHz *float64

	StageGain       *float64
	AGC1Scale0      *float64
	AGC1ScaleMul    *float64
	AGC2Scale0      *float64
	AGC2ScaleMul    *float64
	TimeConstant0   *float64
	TimeConstantMul *float64
	AGCMixCoeff     *float64
}

func float64Ptr(f float64) *float64 {
	return &f
}

// Default sets every nil field to its default value.
func (c *CARFACParams) Default(sampleRate int) *CARFACParams {
	c.SampleRate = sampleRate
	if c.NumEars == 0 {
		c.NumEars = 1
	}
	def := DefaultParams()
	for _, field := range []struct {
		ptr **float64
		val float64
	}{
		{&c.VelocityScale, def.CAR.VelocityScale},
		{&c.VOffset, def.CAR.VOffset},
		{&c.MinZeta, def.CAR.MinZeta},
		{&c.MaxZeta, def.CAR.MaxZeta},
		{&c.ZeroRatio, def.CAR.ZeroRatio},
		{&c.HighFDampingCompression, def.CAR.HighFDampingCompression},
		{&c.ERBPerStep, def.CAR.ERBPerStep},
		{&c.ERBBreakFreq, def.CAR.ERBBreakFreq},
		{&c.ERBQ, def.CAR.ERBQ},

		{&c.TauLPF, def.IHC.TauLPF},
		{&c.Tau1Out, def.IHC.Tau1Out},
		{&c.Tau1In, def.IHC.Tau1In},
		{&c.ACCornerHz, def.IHC.ACCornerHz},

		{&c.StageGain, def.AGC.StageGain},
		{&c.AGC1Scale0, def.AGC.AGC1Scales[0]},
		{&c.AGC1ScaleMul, math.Sqrt2},
		{&c.AGC2Scale0, def.AGC.AGC2Scales[0]},
		{&c.AGC2ScaleMul, math.Sqrt2},
		{&c.TimeConstant0, def.AGC.TimeConstants[0]},
		{&c.TimeConstantMul, 4},
		{&c.AGCMixCoeff, def.AGC.MixCoeff},
	} {
		if *field.ptr == nil {
			*field.ptr = float64Ptr(field.val)
		}
	}
	return c
}

// Params returns the model parameters defined by c, using defaults for nil fields.
func (c CARFACParams) Params() Params {
	c.Default(c.SampleRate)
	params := DefaultParams()

	params.CAR.VelocityScale = *c.VelocityScale
	params.CAR.VOffset = *c.VOffset
	params.CAR.MinZeta = *c.MinZeta
	params.CAR.MaxZeta = *c.MaxZeta
	params.CAR.ZeroRatio = *c.ZeroRatio
	params.CAR.HighFDampingCompression = *c.HighFDampingCompression
	params.CAR.ERBPerStep = *c.ERBPerStep
	params.CAR.ERBBreakFreq = *c.ERBBreakFreq
	params.CAR.ERBQ = *c.ERBQ

	params.IHC.TauLPF = *c.TauLPF
	params.IHC.Tau1Out = *c.Tau1Out
	params.IHC.Tau1In = *c.Tau1In
	params.IHC.ACCornerHz = *c.ACCornerHz

	n := params.AGC.NumStages
	params.AGC.StageGain = *c.StageGain
	params.AGC.AGC1Scales = geometric(*c.AGC1Scale0, *c.AGC1ScaleMul, n)
	params.AGC.AGC2Scales = geometric(*c.AGC2Scale0, *c.AGC2ScaleMul, n)
	params.AGC.TimeConstants = geometric(*c.TimeConstant0, *c.TimeConstantMul, n)
	params.AGC.MixCoeff = *c.AGCMixCoeff
	return params
}
