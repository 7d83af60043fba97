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

// CrossCouple pulls the AGC memories of the ears towards their mean, for
// every stage that just updated, and then closes the loop of every ear
// that isn't open loop.
//
// It must be called right after an AGCStep that returned true for all ears,
// and the ears must share coefficients.
func CrossCouple(ears []*Ear) error {
	if len(ears) < 2 {
		return nil
	}
	first := ears[0]
	for _, ear := range ears[1:] {
		if ear.NumChannels() != first.NumChannels() || ear.AGCNumStages() != first.AGCNumStages() {
			return configErrorf("can't couple an ear with %v channels and %v stages to one with %v channels and %v stages",
				ear.NumChannels(), ear.AGCNumStages(), first.NumChannels(), first.AGCNumStages())
		}
	}
	mean := make([]float64, first.NumChannels())
	mixed := make([]float64, first.NumChannels())
	for stage := 0; stage < first.AGCNumStages(); stage++ {
		if first.AGCDecimPhase(stage) > 0 {
			break
		}
		mix := first.AGCMixCoeff(stage)
		if mix <= 0 {
			continue
		}
		for ch := range mean {
			mean[ch] = 0
		}
		for _, ear := range ears {
			for ch, v := range ear.AGCMemory(stage) {
				mean[ch] += v
			}
		}
		for ch := range mean {
			mean[ch] /= float64(len(ears))
		}
		for _, ear := range ears {
			for ch, v := range ear.AGCMemory(stage) {
				mixed[ch] = v + mix*(mean[ch]-v)
			}
			if err := ear.SetAGCMemory(stage, mixed); err != nil {
				return err
			}
		}
	}
	for _, ear := range ears {
		if !ear.OpenLoop() {
			ear.CloseAGCLoop()
		}
	}
	return nil
}
