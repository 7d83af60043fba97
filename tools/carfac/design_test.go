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
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPoleFrequencies(t *testing.T) {
	params := DefaultParams()
	poles, err := PoleFrequencies(params.CAR, 22050)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := poles[0], 0.85*22050/2; math.Abs(got-want) > 1e-9 {
		t.Errorf("First pole at %vHz, wanted %vHz", got, want)
	}
	for idx := 1; idx < len(poles); idx++ {
		step := poles[idx-1] - poles[idx]
		if want := params.CAR.ERBPerStep * ERB(poles[idx-1], params.CAR); math.Abs(step-want) > 1e-9 {
			t.Errorf("Step from pole %v is %vHz, wanted %vHz", idx-1, step, want)
		}
	}
	last := poles[len(poles)-1]
	if last <= params.CAR.MinPoleHz {
		t.Errorf("Last pole %vHz is below MinPoleHz", last)
	}
	if next := last - params.CAR.ERBPerStep*ERB(last, params.CAR); next > params.CAR.MinPoleHz {
		t.Errorf("Channel map stopped at %vHz, but %vHz is still above MinPoleHz", last, next)
	}
	if _, err := PoleFrequencies(params.CAR, 0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Got %v for sample rate 0, wanted ErrConfiguration", err)
	}
}

func TestDesignIsDeterministic(t *testing.T) {
	c1, err := DesignDefault(DefaultParams(), 22050)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := DesignDefault(DefaultParams(), 22050)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c1, c2); diff != "" {
		t.Errorf("Two designs with the same parameters differ: %v", diff)
	}
}

func TestDesignCAR(t *testing.T) {
	for _, rate := range []float64{16000, 22050, 48000} {
		coeffs, err := DesignDefault(DefaultParams(), rate)
		if err != nil {
			t.Fatal(err)
		}
		for ch := 0; ch < coeffs.NumChannels(); ch++ {
			r1 := coeffs.CAR.R1[ch]
			if r1 <= 0 || r1 >= 1 {
				t.Errorf("%vHz, channel %v: r1 %v is outside (0, 1)", rate, ch, r1)
			}
			if r := r1 - coeffs.CAR.UndampingRange[ch]; r <= 0 || r >= r1 {
				t.Errorf("%vHz, channel %v: most damped radius %v is outside (0, %v)", rate, ch, r, r1)
			}
			stage := coeffs.StageFilter(ch)
			if !stage.Stable() {
				t.Errorf("%vHz, channel %v: stage %+v is unstable", rate, ch, stage)
			}
			if gain := cmplx.Abs(stage.H(1)); math.Abs(gain-1) > 1e-9 {
				t.Errorf("%vHz, channel %v: DC gain is %v, wanted 1", rate, ch, gain)
			}
		}
	}
}

func TestDesignErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params func(p *Params)
		rate   float64
		poles  []float64
	}{
		{
			name:  "no poles",
			rate:  22050,
			poles: []float64{},
		},
		{
			name:  "increasing poles",
			rate:  22050,
			poles: []float64{1000, 2000},
		},
		{
			name:  "pole above Nyquist",
			rate:  22050,
			poles: []float64{12000, 1000},
		},
		{
			name:  "zero sample rate",
			rate:  0,
			poles: []float64{1000},
		},
		{
			name:   "radius below zero",
			params: func(p *Params) { p.CAR.MinZeta = 10 },
			rate:   22050,
			poles:  []float64{8000, 1000},
		},
		{
			name:   "max zeta below min zeta",
			params: func(p *Params) { p.CAR.MaxZeta = 0.01 },
			rate:   22050,
			poles:  []float64{1000},
		},
		{
			name:   "no AGC stages",
			params: func(p *Params) { p.AGC.NumStages = 0 },
			rate:   22050,
			poles:  []float64{1000},
		},
		{
			name:   "negative IHC time constant",
			params: func(p *Params) { p.IHC.Tau1In = -1 },
			rate:   22050,
			poles:  []float64{1000},
		},
	} {
		params := DefaultParams()
		if tc.params != nil {
			tc.params(&params)
		}
		if _, err := Design(params, tc.rate, tc.poles); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%v: got %v, wanted ErrConfiguration", tc.name, err)
		}
	}
}

func TestPoleFrequenciesNeedPositiveERB(t *testing.T) {
	for _, breakFreq := range []float64{-100, -30, -1000} {
		params := DefaultParams()
		params.CAR.ERBBreakFreq = breakFreq
		if _, err := PoleFrequencies(params.CAR, 22050); !errors.Is(err, ErrConfiguration) {
			t.Errorf("ERBBreakFreq %v: got %v, wanted ErrConfiguration", breakFreq, err)
		}
		if _, err := DesignDefault(params, 22050); !errors.Is(err, ErrConfiguration) {
			t.Errorf("DesignDefault with ERBBreakFreq %v: got %v, wanted ErrConfiguration", breakFreq, err)
		}
	}
}

func TestDesignSpatialFIR(t *testing.T) {
	for _, tc := range []struct {
		variance float64
		wantTaps int
		wantIter int
		wantOK   bool
	}{
		{variance: 0.5, wantTaps: 3, wantIter: 1, wantOK: true},
		{variance: 2, wantTaps: 5, wantIter: 1, wantOK: true},
		{variance: 8, wantTaps: 5, wantIter: 4, wantOK: true},
		{variance: 33, wantTaps: 5, wantIter: maxSpatialIterations, wantOK: true},
		{variance: 35, wantOK: false},
	} {
		nTaps, nIter, fir, ok := designSpatialFIR(tc.variance, 0)
		if ok != tc.wantOK || nTaps != tc.wantTaps || nIter != tc.wantIter {
			t.Errorf("designSpatialFIR(%v, 0) = %v taps, %v iterations, %v, %v, wanted %v taps, %v iterations, ok %v", tc.variance, nTaps, nIter, fir, ok, tc.wantTaps, tc.wantIter, tc.wantOK)
		}
	}
}

func TestDesignAGC(t *testing.T) {
	coeffs, err := DesignDefault(DefaultParams(), 22050)
	if err != nil {
		t.Fatal(err)
	}
	if len(coeffs.AGC) != 4 {
		t.Fatalf("Got %v AGC stages, wanted 4", len(coeffs.AGC))
	}
	for stage, c := range coeffs.AGC {
		if want := []int{8, 2, 2, 2}[stage]; c.Decimation != want {
			t.Errorf("Stage %v has decimation %v, wanted %v", stage, c.Decimation, want)
		}
		if want := 1.0 / 15.0; math.Abs(c.DetectScale-want) > 1e-12 {
			t.Errorf("Stage %v has detect scale %v, wanted %v", stage, c.DetectScale, want)
		}
		if c.Epsilon <= 0 || c.Epsilon >= 1 {
			t.Errorf("Stage %v has epsilon %v outside (0, 1)", stage, c.Epsilon)
		}
		if stage == 0 && c.MixCoeff != 0 {
			t.Errorf("Stage 0 has mix coefficient %v, wanted 0", c.MixCoeff)
		}
		if stage > 0 && c.MixCoeff <= 0 {
			t.Errorf("Stage %v has mix coefficient %v, wanted > 0", stage, c.MixCoeff)
		}
		if c.SpatialTaps != 3 || c.SpatialIterations != 1 {
			t.Errorf("Stage %v smooths with %v taps %v times, wanted 3 taps once", stage, c.SpatialTaps, c.SpatialIterations)
		}
		if sum := c.SpatialFIR[0] + c.SpatialFIR[1] + c.SpatialFIR[2]; math.Abs(sum-1) > 1e-12 {
			t.Errorf("Stage %v has FIR %v with DC gain %v", stage, c.SpatialFIR, sum)
		}
	}
}

func TestDeriveDecimation(t *testing.T) {
	if diff := cmp.Diff([]int{8, 4, 4, 4}, deriveDecimation([]float64{0.002, 0.008, 0.032, 0.128}, 22050)); diff != "" {
		t.Errorf("deriveDecimation: -want +got:\n%v", diff)
	}
	params := DefaultParams()
	params.AGC.Decimation = nil
	coeffs, err := DesignDefault(params, 22050)
	if err != nil {
		t.Fatal(err)
	}
	if got := coeffs.AGC[1].Decimation; got != 4 {
		t.Errorf("Derived decimation of stage 1 is %v, wanted 4", got)
	}
}

func TestDesignFIR(t *testing.T) {
	for _, tc := range []struct {
		nTaps    int
		variance float64
		delay    float64
		nIter    int
		wantOK   bool
	}{
		{nTaps: 3, variance: 0.5, delay: 0, nIter: 1, wantOK: true},
		{nTaps: 3, variance: 2, delay: 0, nIter: 1, wantOK: false},
		{nTaps: 5, variance: 2, delay: 0, nIter: 1, wantOK: true},
		{nTaps: 5, variance: 8, delay: 0, nIter: 1, wantOK: false},
		{nTaps: 5, variance: 8, delay: 0, nIter: 4, wantOK: true},
	} {
		fir, ok := designFIR(tc.nTaps, tc.variance, tc.delay, tc.nIter)
		if ok != tc.wantOK {
			t.Errorf("designFIR(%v, %v, %v, %v) = %v, %v, wanted ok %v", tc.nTaps, tc.variance, tc.delay, tc.nIter, fir, ok, tc.wantOK)
		}
		if tc.delay == 0 && fir[0] != fir[2] {
			t.Errorf("designFIR(%v, %v, 0, %v) = %v is asymmetric without delay", tc.nTaps, tc.variance, tc.nIter, fir)
		}
	}
}

func TestIHCRest(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params func(p *IHCParams)
	}{
		{
			name:   "one capacitor",
			params: func(p *IHCParams) {},
		},
		{
			name:   "two capacitors",
			params: func(p *IHCParams) { p.OneCapacitor = false },
		},
	} {
		params := DefaultParams()
		tc.params(&params.IHC)
		coeffs, err := Design(params, 22050, []float64{1000})
		if err != nil {
			t.Fatal(err)
		}
		state := newIHCState(1)
		state.reset(&coeffs.IHC)
		for sample := 0; sample < 1000; sample++ {
			if err := state.step(&coeffs.IHC, []float64{0}); err != nil {
				t.Fatal(err)
			}
			if out := state.Out[0]; out > 1e-12 {
				t.Fatalf("%v: got output %v at sample %v of silence", tc.name, out, sample)
			}
		}
		if math.Abs(state.Cap1[0]-coeffs.IHC.RestCap1) > 1e-12 {
			t.Errorf("%v: capacitor 1 drifted from %v to %v in silence", tc.name, coeffs.IHC.RestCap1, state.Cap1[0])
		}
	}
}
