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
package filter

import (
	"bytes"
	"math"
	"math/cmplx"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTakeNumOfLength(t *testing.T) {
	for _, tc := range []struct {
		length int
		num    int
		want   [][]int
	}{
		{
			length: 3,
			num:    1,
			want:   [][]int{{0}, {1}, {2}},
		},
		{
			length: 3,
			num:    2,
			want:   [][]int{{0, 1}, {0, 2}, {1, 2}},
		},
		{
			length: 4,
			num:    3,
			want:   [][]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}},
		},
	} {
		got := takeNumOfLength(tc.length, tc.num)
		sort.Slice(got, func(i, j int) bool {
			for k := range got[i] {
				if got[i][k] != got[j][k] {
					return got[i][k] < got[j][k]
				}
			}
			return false
		})
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("takeNumOfLength(%v, %v): -want +got:\n%v", tc.length, tc.num, diff)
		}
	}
}

func TestCoeffs(t *testing.T) {
	// (1 - 2x) * (1 - 3x) = 1 - 5x + 6x^2
	if diff := cmp.Diff([]complex128{1, -5, 6}, coeffs([]complex128{2, 3})); diff != "" {
		t.Errorf("coeffs: -want +got:\n%v", diff)
	}
	if diff := cmp.Diff([]complex128{1}, coeffs(nil)); diff != "" {
		t.Errorf("coeffs: -want +got:\n%v", diff)
	}
}

func TestMake(t *testing.T) {
	if _, err := (LTIConf{Gain: 1, Zeros: []complex128{0, 0}, Poles: []complex128{0.5}}).Make(); err == nil {
		t.Errorf("Wanted an error for an anti-causal filter")
	}
	conf := LTIConf{Gain: 1, Poles: []complex128{0.5, 1.5}}
	if conf.Stable() {
		t.Errorf("%+v should not be stable", conf)
	}
	conf.Poles[1] = 0.9
	if !conf.Stable() {
		t.Errorf("%+v should be stable", conf)
	}
}

func TestImpulseResponse(t *testing.T) {
	// H(z) = 0.5 * z / (z - 0.5) has impulse response 0.5 * 0.5^n.
	lti, err := LTIConf{
		Gain:  0.5,
		Zeros: []complex128{0},
		Poles: []complex128{0.5},
	}.Make()
	if err != nil {
		t.Fatal(err)
	}
	impulse := make([]float64, 20)
	impulse[0] = 1
	for n, got := range lti.Filter(impulse) {
		if want := 0.5 * math.Pow(0.5, float64(n)); math.Abs(got-want) > 1e-12 {
			t.Errorf("y[%v] = %v, wanted %v", n, got, want)
		}
	}
	lti.Reset()
	if got := real(lti.Y(1)); got != 0.5 {
		t.Errorf("After Reset, y[0] = %v, wanted 0.5", got)
	}
}

func TestConvolveMatchesDifferenceEquation(t *testing.T) {
	conf := LTIConf{
		Gain:  0.3,
		Zeros: MakePZ([][2]float64{{0.9, 3 * math.Pi / 4}}),
		Poles: MakePZ([][2]float64{{0.8, math.Pi / 4}, {0.5, math.Pi / 2}}),
	}
	lti, err := conf.Make()
	if err != nil {
		t.Fatal(err)
	}
	impulse := make([]complex128, 1024)
	impulse[0] = 1
	convolved := conf.Convolve(impulse)
	for n, x := range impulse {
		if got, want := lti.Y(x), convolved[n]; cmplx.Abs(got-want) > 1e-9 {
			t.Errorf("y[%v] = %v, convolution gave %v", n, got, want)
		}
	}
}

func TestSteadyStateGain(t *testing.T) {
	rate := 16000.0
	conf := LTIConf{
		Gain:  1,
		Zeros: MakePZ([][2]float64{{0.7, 3 * math.Pi / 4}}),
		Poles: MakePZ([][2]float64{{0.9, math.Pi / 4}}),
	}
	for _, f := range []float64{500, 2000, 5000} {
		lti, err := conf.Make()
		if err != nil {
			t.Fatal(err)
		}
		signal := make([]float64, 5200)
		for i := range signal {
			signal[i] = math.Sin(2 * math.Pi * f * float64(i) / rate)
		}
		// The tail is a whole number of periods of every tested frequency.
		tail := lti.Filter(signal)[2000:]
		squares := 0.0
		for _, y := range tail {
			squares += y * y
		}
		amplitude := math.Sqrt(2 * squares / float64(len(tail)))
		if got, want := 20*math.Log10(amplitude), conf.GainDB(f, rate); math.Abs(got-want) > 0.05 {
			t.Errorf("Gain at %vHz is %vdB, wanted %vdB", f, got, want)
		}
	}
}

func TestPrintResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	conf := LTIConf{Gain: 0.5, Zeros: []complex128{-1}, Poles: []complex128{0}}
	if err := conf.PrintResponse(buf, 8000, 10, 60); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("Got %v lines, wanted 10", len(lines))
	}
	if !strings.HasPrefix(lines[0], "0.0Hz 0.0dB") {
		t.Errorf("First line %q should show 0dB at 0Hz", lines[0])
	}
	if diff := cmp.Diff(1.0, cmplx.Abs(conf.H(1)), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("DC gain: -want +got:\n%v", diff)
	}
}
