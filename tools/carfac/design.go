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
	"math/cmplx"

	"github.com/google-research/cochlea/tools/filter"
)

const (
	// minAGCUpdatesPerTimeConstant is used when deriving decimation factors.
	minAGCUpdatesPerTimeConstant = 4
	maxSpatialIterations         = 16
)

// CARCoeffs are the per channel resonator coefficients.
type CARCoeffs struct {
	VelocityScale float64
	VOffset       float64

	// R1 is the pole radius at minimum damping.
	R1 []float64
	A0 []float64
	C0 []float64
	H  []float64
	// G0 is the stage gain giving unity DC gain at minimum damping.
	G0 []float64
	ZR []float64
	// UndampingRange is the distance between the pole radius at maximum damping and R1.
	UndampingRange []float64
}

// IHCCoeffs are the inner hair cell coefficients, shared by all channels.
type IHCCoeffs struct {
	JustHalfWaveRectify bool
	OneCapacitor        bool

	LPFCoeff   float64
	Out1Rate   float64
	In1Rate    float64
	Out2Rate   float64
	In2Rate    float64
	OutputGain float64
	RestOutput float64
	RestCap1   float64
	RestCap2   float64
	ACCoeff    float64
}

// AGCCoeffs are the coefficients of one AGC stage.
type AGCCoeffs struct {
	// Decimation is relative to the previous stage.
	Decimation int
	StageGain  float64
	// Epsilon is the coefficient of the one pole temporal smoother.
	Epsilon float64
	// MixCoeff is the strength of cross ear coupling for this stage.
	MixCoeff float64
	// DetectScale scales the AGC drive before it enters stage 0.
	DetectScale float64

	PoleZ1            float64
	PoleZ2            float64
	SpatialIterations int
	SpatialTaps       int
	// SpatialFIR is [left, mid, right]; with 5 taps the outer values are used twice.
	SpatialFIR [3]float64
}

// Coefficients is the immutable output of Design, safe to share between any number of Ears.
type Coefficients struct {
	SampleRate      float64
	PoleFrequencies []float64
	CAR             CARCoeffs
	IHC             IHCCoeffs
	AGC             []AGCCoeffs
}

// NumChannels returns the number of channels of the design.
func (c *Coefficients) NumChannels() int {
	return len(c.PoleFrequencies)
}

// ERB returns the equivalent rectangular bandwidth at f.
func ERB(f float64, car CARParams) float64 {
	return (car.ERBBreakFreq + f) / car.ERBQ
}

// PoleFrequencies returns the channel map for the sample rate: the first pole
// is at FirstPoleTheta, and each following pole is ERBPerStep ERBs lower, until
// MinPoleHz is reached.
func PoleFrequencies(car CARParams, sampleRate float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, configErrorf("sample rate %v", sampleRate)
	}
	if car.ERBPerStep <= 0 || car.ERBQ <= 0 {
		return nil, configErrorf("ERBPerStep %v and ERBQ %v must be positive", car.ERBPerStep, car.ERBQ)
	}
	if ERB(car.MinPoleHz, car) <= 0 {
		return nil, configErrorf("ERB at MinPoleHz %vHz is %v, ERBBreakFreq %v is too low", car.MinPoleHz, ERB(car.MinPoleHz, car), car.ERBBreakFreq)
	}
	result := []float64{}
	for pole := car.FirstPoleTheta * sampleRate / (2 * math.Pi); pole > car.MinPoleHz; pole -= car.ERBPerStep * ERB(pole, car) {
		result = append(result, pole)
	}
	if len(result) == 0 {
		return nil, configErrorf("no poles above %vHz at sample rate %v", car.MinPoleHz, sampleRate)
	}
	return result, nil
}

// Design computes the coefficients for a model with the given pole frequencies,
// which must be strictly decreasing and below Nyquist.
func Design(params Params, sampleRate float64, poleFrequencies []float64) (*Coefficients, error) {
	if sampleRate <= 0 {
		return nil, configErrorf("sample rate %v", sampleRate)
	}
	if len(poleFrequencies) == 0 {
		return nil, configErrorf("no pole frequencies")
	}
	for idx, pole := range poleFrequencies {
		if pole <= 0 || pole >= sampleRate/2 {
			return nil, configErrorf("pole %v at %vHz is outside (0, %v)", idx, pole, sampleRate/2)
		}
		if idx > 0 && pole >= poleFrequencies[idx-1] {
			return nil, configErrorf("pole %v at %vHz isn't below the previous pole at %vHz", idx, pole, poleFrequencies[idx-1])
		}
	}
	result := &Coefficients{
		SampleRate:      sampleRate,
		PoleFrequencies: append([]float64{}, poleFrequencies...),
	}
	var err error
	if result.CAR, err = designCAR(params.CAR, sampleRate, poleFrequencies); err != nil {
		return nil, err
	}
	if result.IHC, err = designIHC(params.IHC, sampleRate); err != nil {
		return nil, err
	}
	if result.AGC, err = designAGC(params.AGC, sampleRate); err != nil {
		return nil, err
	}
	return result, nil
}

// DesignDefault designs coefficients for the channel map the parameters define.
func DesignDefault(params Params, sampleRate float64) (*Coefficients, error) {
	poles, err := PoleFrequencies(params.CAR, sampleRate)
	if err != nil {
		return nil, err
	}
	return Design(params, sampleRate, poles)
}

func designCAR(car CARParams, sampleRate float64, poles []float64) (CARCoeffs, error) {
	if car.ERBQ <= 0 {
		return CARCoeffs{}, configErrorf("ERBQ %v must be positive", car.ERBQ)
	}
	n := len(poles)
	result := CARCoeffs{
		VelocityScale:  car.VelocityScale,
		VOffset:        car.VOffset,
		R1:             make([]float64, n),
		A0:             make([]float64, n),
		C0:             make([]float64, n),
		H:              make([]float64, n),
		G0:             make([]float64, n),
		ZR:             make([]float64, n),
		UndampingRange: make([]float64, n),
	}
	f := car.ZeroRatio*car.ZeroRatio + 1
	ff := car.HighFDampingCompression
	for ch, pole := range poles {
		theta := 2 * math.Pi * pole / sampleRate
		result.C0[ch] = math.Sin(theta)
		result.A0[ch] = math.Cos(theta)
		result.H[ch] = result.C0[ch] * f

		x := theta / math.Pi
		result.ZR[ch] = math.Pi * (x - ff*x*x*x)

		minZetaMod := car.MinZeta + 0.25*(ERB(pole, car)/pole-car.MinZeta)
		result.R1[ch] = 1 - result.ZR[ch]*minZetaMod
		if !(result.R1[ch] > 0 && result.R1[ch] < 1) {
			return CARCoeffs{}, configErrorf("channel %v at %vHz has pole radius %v outside (0, 1)", ch, pole, result.R1[ch])
		}
		if car.MaxZeta < minZetaMod {
			return CARCoeffs{}, configErrorf("channel %v at %vHz has MaxZeta %v below its minimum damping %v", ch, pole, car.MaxZeta, minZetaMod)
		}
		result.UndampingRange[ch] = result.ZR[ch] * (car.MaxZeta - minZetaMod)
		if maxDampingR := result.R1[ch] - result.UndampingRange[ch]; maxDampingR <= 0 {
			return CARCoeffs{}, configErrorf("channel %v at %vHz has pole radius %v at maximum damping", ch, pole, maxDampingR)
		}

		r1 := result.R1[ch]
		t := 1 - 2*r1*result.A0[ch] + r1*r1
		result.G0[ch] = t / (t + result.H[ch]*r1*result.C0[ch])
	}
	return result, nil
}

// detect is the receptor conductance as a function of the AC coupled CAR output.
func detect(x float64) float64 {
	const a = 0.175
	z := x + a
	if z <= 0 {
		return 0
	}
	z2 := z * z
	z3 := z2 * z
	return z3 / (z3 + z2 + 0.1)
}

func designIHC(ihc IHCParams, sampleRate float64) (IHCCoeffs, error) {
	if ihc.ACCornerHz < 0 {
		return IHCCoeffs{}, configErrorf("ACCornerHz %v is negative", ihc.ACCornerHz)
	}
	result := IHCCoeffs{
		JustHalfWaveRectify: ihc.JustHalfWaveRectify,
		OneCapacitor:         ihc.OneCapacitor,
		ACCoeff:              2 * math.Pi * ihc.ACCornerHz / sampleRate,
	}
	if ihc.JustHalfWaveRectify {
		return result, nil
	}
	taus := []float64{ihc.TauLPF, ihc.Tau1Out, ihc.Tau1In}
	if !ihc.OneCapacitor {
		taus = append(taus, ihc.Tau2Out, ihc.Tau2In)
	}
	for _, tau := range taus {
		if tau <= 0 {
			return IHCCoeffs{}, configErrorf("IHC time constants %+v must be positive", ihc)
		}
	}
	result.LPFCoeff = 1 - math.Exp(-1/(ihc.TauLPF*sampleRate))
	ro := 1 / detect(10)
	r0 := 1 / detect(0)
	if ihc.OneCapacitor {
		c := ihc.Tau1Out / ro
		ri := ihc.Tau1In / c
		// Doubling ro gives the steady state average at a 50% duty cycle.
		saturationOutput := 1 / (2*ro + ri)
		current := 1 / (ri + r0)
		result.RestCap1 = 1 - current*ri
		result.Out1Rate = ro / (ihc.Tau1Out * sampleRate)
		result.In1Rate = 1 / (ihc.Tau1In * sampleRate)
		result.OutputGain = 1 / (saturationOutput - current)
		result.RestOutput = current / (saturationOutput - current)
		return result, nil
	}
	c2 := ihc.Tau2Out / ro
	r2 := ihc.Tau2In / c2
	c1 := ihc.Tau1Out / r2
	r1 := ihc.Tau1In / c1
	saturationOutput := 1 / (2*ro + r2 + r1)
	current := 1 / (r1 + r2 + r0)
	result.RestCap1 = 1 - current*r1
	result.RestCap2 = result.RestCap1 - current*r2
	result.Out1Rate = 1 / (ihc.Tau1Out * sampleRate)
	result.In1Rate = 1 / (ihc.Tau1In * sampleRate)
	result.Out2Rate = ro / (ihc.Tau2Out * sampleRate)
	result.In2Rate = 1 / (ihc.Tau2In * sampleRate)
	result.OutputGain = 1 / (saturationOutput - current)
	result.RestOutput = current / (saturationOutput - current)
	return result, nil
}

// deriveDecimation picks, per stage, the largest power of two total decimation
// that still updates the stage minAGCUpdatesPerTimeConstant times per time constant.
func deriveDecimation(timeConstants []float64, sampleRate float64) []int {
	result := make([]int, len(timeConstants))
	total := 1
	for stage, tau := range timeConstants {
		want := 1
		for float64(want*2) <= tau*sampleRate/minAGCUpdatesPerTimeConstant {
			want *= 2
		}
		if want < total {
			want = total
		}
		result[stage] = want / total
		total = want
	}
	return result
}

// designFIR returns the 3 coefficients of a spatial smoothing kernel with the
// given variance and mean delay after nIter iterations, and whether the kernel is usable.
func designFIR(nTaps int, delayVariance, meanDelay float64, nIter int) ([3]float64, bool) {
	meanDelay /= float64(nIter)
	delayVariance /= float64(nIter)
	moment := delayVariance + meanDelay*meanDelay
	switch nTaps {
	case 3:
		a := (moment - meanDelay) / 2
		b := (moment + meanDelay) / 2
		fir := [3]float64{a, 1 - a - b, b}
		return fir, fir[1] >= 0.25
	case 5:
		a := (moment*2/5 - meanDelay*2/3) / 2
		b := (moment*2/5 + meanDelay*2/3) / 2
		fir := [3]float64{a / 2, 1 - a - b, b / 2}
		return fir, fir[1] >= 0.15
	}
	return [3]float64{}, false
}

// designSpatialFIR tries a single 3 tap FIR, then 5 taps with up to
// maxSpatialIterations iterations.
func designSpatialFIR(delayVariance, meanDelay float64) (nTaps, nIter int, fir [3]float64, ok bool) {
	if fir, ok = designFIR(3, delayVariance, meanDelay, 1); ok {
		return 3, 1, fir, true
	}
	for nIter = 1; nIter <= maxSpatialIterations; nIter++ {
		if fir, ok = designFIR(5, delayVariance, meanDelay, nIter); ok {
			return 5, nIter, fir, true
		}
	}
	return 0, 0, [3]float64{}, false
}

func designAGC(agc AGCParams, sampleRate float64) ([]AGCCoeffs, error) {
	n := agc.NumStages
	if n < 1 {
		return nil, configErrorf("%v AGC stages", n)
	}
	if len(agc.TimeConstants) != n || len(agc.AGC1Scales) != n || len(agc.AGC2Scales) != n {
		return nil, configErrorf("AGC stage parameters %+v don't all have %v stages", agc, n)
	}
	decimation := agc.Decimation
	if len(decimation) == 0 {
		decimation = deriveDecimation(agc.TimeConstants, sampleRate)
	}
	if len(decimation) != n {
		return nil, configErrorf("%v AGC decimation factors for %v stages", len(decimation), n)
	}
	result := make([]AGCCoeffs, n)
	totalDCGain := 0.0
	decim := 1.0
	for stage := range result {
		tau := agc.TimeConstants[stage]
		if tau <= 0 {
			return nil, configErrorf("AGC stage %v has time constant %v", stage, tau)
		}
		if decimation[stage] < 1 {
			return nil, configErrorf("AGC stage %v has decimation %v", stage, decimation[stage])
		}
		coeffs := &result[stage]
		coeffs.Decimation = decimation[stage]
		coeffs.StageGain = agc.StageGain
		decim *= float64(decimation[stage])
		coeffs.Epsilon = 1 - math.Exp(-decim/(tau*sampleRate))

		// Updates per time constant at this stage's rate.
		nTimes := tau * (sampleRate / decim)
		delay := (agc.AGC2Scales[stage] - agc.AGC1Scales[stage]) / nTimes
		spreadSq := (agc.AGC1Scales[stage]*agc.AGC1Scales[stage] + agc.AGC2Scales[stage]*agc.AGC2Scales[stage]) / nTimes

		u := 1 + 1/spreadSq
		p := u - math.Sqrt(u*u-1)
		dp := delay * (1 - 2*p + p*p) / 2
		coeffs.PoleZ1 = p - dp
		coeffs.PoleZ2 = p + dp

		nTaps, nIter, fir, ok := designSpatialFIR(spreadSq, delay)
		if !ok {
			return nil, configErrorf("AGC stage %v needs more than %v spatial smoothing iterations", stage, maxSpatialIterations)
		}
		coeffs.SpatialTaps = nTaps
		coeffs.SpatialIterations = nIter
		coeffs.SpatialFIR = fir

		if stage > 0 {
			coeffs.MixCoeff = agc.MixCoeff / nTimes
		}
		totalDCGain += math.Pow(agc.StageGain, float64(stage))
	}
	for stage := range result {
		result[stage].DetectScale = 1 / totalDCGain
	}
	return result, nil
}

// StageGain returns the stage gains that give unity DC gain when each
// channel is undamped by the given fraction of its UndampingRange.
func (c *CARCoeffs) StageGain(undamping []float64, result []float64) {
	for ch := range result {
		r := c.R1[ch] - c.UndampingRange[ch]*(1-undamping[ch])
		t := 1 - 2*r*c.A0[ch] + r*r
		result[ch] = t / (t + c.H[ch]*r*c.C0[ch])
	}
}

// StageFilter returns the linear transfer function of the CAR stage of a
// channel at minimum damping: g * (1 + h * r * c0 * z^-1 / (1 - 2 * r * a0 * z^-1 + r^2 * z^-2)).
func (c *Coefficients) StageFilter(ch int) filter.LTIConf {
	r := c.CAR.R1[ch]
	pole := cmplx.Rect(r, math.Atan2(c.CAR.C0[ch], c.CAR.A0[ch]))
	// The numerator is z^2 + (h * r * c0 - 2 * r * a0) * z + r^2.
	b := complex(c.CAR.H[ch]*r*c.CAR.C0[ch]-2*r*c.CAR.A0[ch], 0)
	disc := cmplx.Sqrt(b*b - complex(4*r*r, 0))
	return filter.LTIConf{
		Gain:  c.CAR.G0[ch],
		Zeros: []complex128{(-b + disc) / 2, (-b - disc) / 2},
		Poles: []complex128{pole, cmplx.Conj(pole)},
	}
}
