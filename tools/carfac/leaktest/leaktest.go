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

// leaktest runs many models sharing one set of coefficients concurrently, and
// verifies that they all produce the same output, to catch leaks and races.
package main

import (
	"flag"
	"fmt"
	"log"
	"reflect"
	"runtime"

	"github.com/cheggaaa/pb"
	"github.com/google-research/cochlea/tools/carfac"
	"github.com/google-research/cochlea/tools/signals"
	"github.com/google-research/cochlea/tools/workerpool"
)

var (
	iterations  = flag.Int("iterations", 100000, "Number of models to create and run.")
	sampleRate  = flag.Int("sample_rate", 48000, "Sample rate of the models.")
	numEars     = flag.Int("num_ears", 2, "Number of ears of each model.")
	concurrency = flag.Int("concurrency", runtime.NumCPU(), "Number of models to run concurrently.")
)

func run(coeffs *carfac.Coefficients, input []float32) ([][]float32, error) {
	cf, err := carfac.NewFromCoefficients(coeffs, *numEars)
	if err != nil {
		return nil, err
	}
	if err := cf.Run(input); err != nil {
		return nil, err
	}
	result := [][]float32{}
	for ear := 0; ear < cf.NumEars(); ear++ {
		bm, err := cf.EarBM(ear)
		if err != nil {
			return nil, err
		}
		result = append(result, bm)
	}
	return result, nil
}

func main() {
	flag.Parse()
	params := carfac.CARFACParams{}
	params.Default(*sampleRate)
	coeffs, err := carfac.DesignDefault(params.Params(), float64(*sampleRate))
	if err != nil {
		log.Panic(err)
	}
	rate := signals.Hz(*sampleRate)
	numSamples := signals.Seconds(carfac.DefaultSegmentSeconds).Samples(rate)
	channels := []signals.Float64Slice{}
	for ear := 0; ear < *numEars; ear++ {
		channels = append(channels, signals.Sine(signals.Hz(1000*(ear+1)), -20, rate, numSamples))
	}
	input, err := signals.Interleave(channels...)
	if err != nil {
		log.Panic(err)
	}
	want, err := run(coeffs, input)
	if err != nil {
		log.Panic(err)
	}

	bar := pb.StartNew(*iterations).Prefix("Running")
	wp := workerpool.New(*concurrency)
	for i := 0; i < *iterations; i++ {
		wp.Go(fmt.Sprintf("model %v", i), func() error {
			defer bar.Increment()
			got, err := run(coeffs, input)
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(want, got) {
				return fmt.Errorf("output differs from the first model")
			}
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		log.Panic(err)
	}
	bar.Finish()
}
