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
	"testing"

	"github.com/google-research/cochlea/tools/signals"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCrossCouple(t *testing.T) {
	coeffs, err := DesignDefault(DefaultParams(), 22050)
	if err != nil {
		t.Fatal(err)
	}
	n := coeffs.NumChannels()
	ears := []*Ear{}
	for _, memory := range []float64{1, 0} {
		ear, err := NewEar(coeffs)
		if err != nil {
			t.Fatal(err)
		}
		if err := ear.SetAGCMemory(1, constant(n, memory)); err != nil {
			t.Fatal(err)
		}
		ears = append(ears, ear)
	}
	if err := CrossCouple(ears); err != nil {
		t.Fatal(err)
	}
	mix := coeffs.AGC[1].MixCoeff
	for idx, want := range []float64{1 - mix/2, mix / 2} {
		if diff := cmp.Diff(constant(n, want), ears[idx].AGCMemory(1), cmpopts.EquateApprox(0, 1e-15)); diff != "" {
			t.Errorf("Ear %v stage 1: -want +got:\n%v", idx, diff)
		}
		if diff := cmp.Diff(constant(n, 0), ears[idx].AGCMemory(0)); diff != "" {
			t.Errorf("Ear %v stage 0 isn't coupled, but changed: -want +got:\n%v", idx, diff)
		}
		// The loop was closed with a stage 0 memory of 0, which is the rest state.
		if diff := cmp.Diff(constant(n, 0), ears[idx].DZB()); diff != "" {
			t.Errorf("Ear %v DZB: -want +got:\n%v", idx, diff)
		}
	}

	if err := CrossCouple(ears[:1]); err != nil {
		t.Errorf("Got %v coupling a single ear", err)
	}

	other, err := Design(DefaultParams(), 22050, []float64{1000})
	if err != nil {
		t.Fatal(err)
	}
	otherEar, err := NewEar(other)
	if err != nil {
		t.Fatal(err)
	}
	if err := CrossCouple([]*Ear{ears[0], otherEar}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Got %v coupling ears with different channels, wanted ErrConfiguration", err)
	}
}

func TestIdenticalEarsStayIdentical(t *testing.T) {
	cf := mustNew(t, CARFACParams{SampleRate: 22050, NumEars: 2})
	mono := signals.Sine(1000, -20, 22050, cf.NumSamples())
	stereo, err := signals.Interleave(mono, mono)
	if err != nil {
		t.Fatal(err)
	}
	if err := cf.Run(stereo); err != nil {
		t.Fatal(err)
	}
	left, err := cf.EarNAP(0)
	if err != nil {
		t.Fatal(err)
	}
	right, err := cf.EarNAP(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(left, right); diff != "" {
		t.Errorf("Ears with the same input differ: -left +right:\n%v", diff)
	}
}

func TestCouplingPullsEarsTogether(t *testing.T) {
	agcDifference := func(mixCoeff float64) float64 {
		cf := mustNew(t, CARFACParams{SampleRate: 22050, NumEars: 2, AGCMixCoeff: &mixCoeff})
		left := signals.Sine(1000, -20, 22050, cf.NumSamples())
		right := make(signals.Float64Slice, len(left))
		stereo, err := signals.Interleave(left, right)
		if err != nil {
			t.Fatal(err)
		}
		if err := cf.Run(stereo); err != nil {
			t.Fatal(err)
		}
		ears := cf.Ears()
		sum := 0.0
		for ch, v := range ears[0].AGCMemory(1) {
			sum += math.Abs(v - ears[1].AGCMemory(1)[ch])
		}
		return sum
	}
	uncoupled := agcDifference(0)
	coupled := agcDifference(0.5)
	if uncoupled == 0 {
		t.Fatalf("A sine in one ear and silence in the other gave identical AGC memories")
	}
	if coupled >= uncoupled {
		t.Errorf("Coupled ears differ by %v, uncoupled by %v, wanted coupling to reduce the difference", coupled, uncoupled)
	}
}
