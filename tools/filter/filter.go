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

// Package filter evaluates and runs linear time invariant filters defined by poles and zeros.
package filter

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// LTIConf defines H(z) = Gain * (z - q0) * (z - q1) * ... / ((z - p0) * (z - p1) * ...).
type LTIConf struct {
	Gain  float64
	Poles []complex128
	Zeros []complex128
}

// Make returns a filter running the transfer function.
func (l LTIConf) Make() (*LTI, error) {
	if !l.Causal() {
		return nil, fmt.Errorf("anti-causal filter with %v zeros and %v poles", len(l.Zeros), len(l.Poles))
	}
	lti := &LTI{
		gain:       complex(l.Gain, 0),
		poleCoeffs: coeffs(l.Poles),
		zeroCoeffs: coeffs(l.Zeros),
		xHist:      make([]complex128, len(l.Poles)+1),
		yHist:      make([]complex128, len(l.Poles)+1),
	}
	return lti, nil
}

// Stable returns whether all poles are inside the unit circle.
func (l LTIConf) Stable() bool {
	for _, pole := range l.Poles {
		if cmplx.Abs(pole) >= 1.0 {
			return false
		}
	}
	return true
}

func (l LTIConf) Causal() bool {
	return len(l.Poles) >= len(l.Zeros)
}

// H evaluates the transfer function at z.
func (l LTIConf) H(z complex128) complex128 {
	res := complex(l.Gain, 0)
	for _, zero := range l.Zeros {
		res *= z - zero
	}
	denom := complex128(1)
	for _, pole := range l.Poles {
		denom *= z - pole
	}
	return res / denom
}

// HzToZ returns the point on the unit circle of frequency f at the sample rate.
func HzToZ(f, rate float64) complex128 {
	return cmplx.Exp(complex(0, 2*math.Pi*f/rate))
}

// GainDB returns the magnitude response at frequency f, in dB.
func (l LTIConf) GainDB(f, rate float64) float64 {
	return 20 * math.Log10(cmplx.Abs(l.H(HzToZ(f, rate))))
}

// Convolve filters the (periodic) signal in the frequency domain.
func (l LTIConf) Convolve(s []complex128) []complex128 {
	coeffs := fft.FFT(s)
	wPerBin := 2 * math.Pi / float64(len(coeffs))
	for i := range coeffs {
		coeffs[i] *= l.H(cmplx.Exp(complex(0, wPerBin*float64(i))))
	}
	return fft.IFFT(coeffs)
}

// PrintResponse renders the magnitude response in dB between 0Hz and Nyquist,
// one frequency per line.
func (l LTIConf) PrintResponse(w io.Writer, rate float64, height, width int) error {
	headers := []string{}
	gains := []float64{}
	maxHeaderLen := 0
	minGain := math.MaxFloat64
	maxGain := -math.MaxFloat64
	for i := 0; i < height; i++ {
		f := float64(i) * rate / 2 / float64(height)
		header := fmt.Sprintf("%.1fHz %.1fdB ", f, l.GainDB(f, rate))
		if len(header) > maxHeaderLen {
			maxHeaderLen = len(header)
		}
		headers = append(headers, header)
		gain := l.GainDB(f, rate)
		if !math.IsInf(gain, 0) {
			maxGain = math.Max(maxGain, gain)
			minGain = math.Min(minGain, gain)
		}
		gains = append(gains, gain)
	}
	gainLen := width - maxHeaderLen
	widthPerGain := 0.0
	if maxGain > minGain {
		widthPerGain = float64(gainLen) / (maxGain - minGain)
	}
	for i := 0; i < height; i++ {
		line := bytes.NewBufferString(headers[i])
		for line.Len() < maxHeaderLen {
			fmt.Fprint(line, " ")
		}
		if !math.IsInf(gains[i], 0) {
			for bar := 0; bar < int((gains[i]-minGain)*widthPerGain); bar++ {
				fmt.Fprint(line, " ")
			}
			fmt.Fprint(line, "*")
		}
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}

// MakePZ returns conjugate pairs of poles or zeros from [radius, angle] pairs.
func MakePZ(params [][2]float64) []complex128 {
	res := []complex128{}
	for _, pair := range params {
		z := cmplx.Rect(pair[0], pair[1])
		res = append(res, z, cmplx.Conj(z))
	}
	return res
}

// LTI runs a transfer function as a difference equation.
type LTI struct {
	gain       complex128
	poleCoeffs []complex128
	zeroCoeffs []complex128
	xHist      []complex128
	yHist      []complex128
	histIdx    int
}

// Reset clears the filter history.
func (l *LTI) Reset() {
	for i := range l.xHist {
		l.xHist[i] = 0
		l.yHist[i] = 0
	}
	l.histIdx = 0
}

// Y returns the next output for the input x.
//
// With H dividing out the highest power of z:
// y[n] = (g * (qc0 * x[n-d] + qc1 * x[n-d-1] + ...) - (pc1 * y[n-1] + pc2 * y[n-2] + ...)) / pc0
// where d is the number of poles minus the number of zeros.
func (l *LTI) Y(x complex128) complex128 {
	l.xHist[l.histIdx] = x
	res := complex128(0)
	delay := len(l.poleCoeffs) - len(l.zeroCoeffs)
	for i := range l.zeroCoeffs {
		res += l.hist(l.xHist, -(i + delay)) * l.gain * l.zeroCoeffs[i]
	}
	for i := 1; i < len(l.poleCoeffs); i++ {
		res -= l.hist(l.yHist, -i) * l.poleCoeffs[i]
	}
	res /= l.poleCoeffs[0]
	l.yHist[l.histIdx] = res
	l.histIdx = (l.histIdx + 1) % len(l.xHist)
	return res
}

// Filter returns the real output for a real input signal.
func (l *LTI) Filter(signal []float64) []float64 {
	result := make([]float64, len(signal))
	for i, x := range signal {
		result[i] = real(l.Y(complex(x, 0)))
	}
	return result
}

func (l *LTI) hist(h []complex128, d int) complex128 {
	return h[(len(h)+l.histIdx+d)%len(h)]
}

// takeNumOfLength returns all combinations of num elements from a set of length.
func takeNumOfLength(length, num int) [][]int {
	var helper func(int, int) [][]int
	helper = func(pos, remaining int) [][]int {
		combos := [][]int{}
		for i := pos; i < length; i++ {
			if remaining == 1 {
				combos = append(combos, []int{i})
			} else {
				for _, remainder := range helper(i+1, remaining-1) {
					combos = append(combos, append([]int{i}, remainder...))
				}
			}
		}
		return combos
	}
	return helper(0, num)
}

// coeffs expands (1 - k1 * x) * (1 - k2 * x) * ... (1 - kn * x) to c0 + c1 * x + c2 * x^2 + ... cn * x^n.
func coeffs(constants []complex128) []complex128 {
	res := make([]complex128, len(constants)+1)
	res[0] = 1
	for num := 1; num <= len(constants); num++ {
		sum := complex128(0)
		for _, parts := range takeNumOfLength(len(constants), num) {
			prod := complex128(1)
			for _, part := range parts {
				prod *= -constants[part]
			}
			sum += prod
		}
		res[num] = sum
	}
	return res
}
