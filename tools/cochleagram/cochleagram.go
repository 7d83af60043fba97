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

// cochleagram runs the CARFAC model over WAV files and writes a summary of
// the output of each ear as a tf.Example TFRecord.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	"github.com/bmatcuk/doublestar/v2"
	"github.com/cheggaaa/pb"
	"github.com/google-research/cochlea/tools/carfac"
	"github.com/google-research/cochlea/tools/features"
	"github.com/google-research/cochlea/tools/signals"
	"github.com/google-research/cochlea/tools/workerpool"
)

var (
	wavGlob           = flag.String("wav_glob", "", "Glob matching the WAV files to process, ** matches any number of directories.")
	output            = flag.String("output", "", "Path to the TFRecord file the cochleagrams will be written to.")
	numEars           = flag.Int("num_ears", 0, "Number of ears of the model. 0 means one per WAV channel, 2 with a mono file feeds the same signal to both ears.")
	openLoop          = flag.Bool("open_loop", false, "Whether to run CARFAC in an open loop.")
	zeroVOffset       = flag.Bool("zero_v_offset", false, "Whether to zero the v_offset CARFAC parameter.")
	erbPerStep        = flag.Float64("erb_per_step", 0.0, "Custom erb_per_step when running CARFAC. 0.0 means use default value.")
	concurrency       = flag.Int("concurrency", runtime.NumCPU(), "Number of files to process concurrently.")
	fftWindow         = flag.Int("fft_window", 2048, "Number of samples at the end of each file to compute channel spectrums for. 0 means no spectrums.")
	keepValues        = flag.Bool("keep_values", false, "Whether to store the full NAP of each ear.")
	printStageFilters = flag.Bool("print_stage_filters", false, "Whether to print the transfer function of each CAR stage before processing.")
)

type designs struct {
	params carfac.CARFACParams
	mutex  sync.Mutex
	cache  map[signals.Hz]*carfac.Coefficients
}

// get returns the coefficients for a sample rate, designing them the first time.
func (d *designs) get(rate signals.Hz) (*carfac.Coefficients, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if coeffs, found := d.cache[rate]; found {
		return coeffs, nil
	}
	params := d.params
	params.Default(int(rate))
	coeffs, err := carfac.DesignDefault(params.Params(), float64(rate))
	if err != nil {
		return nil, err
	}
	if *printStageFilters {
		for ch := 0; ch < coeffs.NumChannels(); ch++ {
			fmt.Printf("%vHz, channel %v, pole at %.1fHz\n", rate, ch, coeffs.PoleFrequencies[ch])
			if err := coeffs.StageFilter(ch).PrintResponse(os.Stdout, float64(rate), 40, 100); err != nil {
				return nil, err
			}
		}
	}
	d.cache[rate] = coeffs
	return coeffs, nil
}

func earInputs(audio *signals.Audio) ([]signals.Float64Slice, error) {
	channels := audio.Channels
	switch {
	case *numEars == 0 || *numEars == len(channels):
		return channels, nil
	case len(channels) == 1:
		result := make([]signals.Float64Slice, *numEars)
		for idx := range result {
			result[idx] = channels[0]
		}
		return result, nil
	}
	return nil, fmt.Errorf("can't feed %v WAV channels to %v ears", len(channels), *numEars)
}

func process(path string, d *designs, w *features.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	audio, err := signals.ReadWAV(f)
	if err != nil {
		return err
	}
	inputs, err := earInputs(audio)
	if err != nil {
		return err
	}
	buffer, err := signals.Interleave(inputs...)
	if err != nil {
		return err
	}
	coeffs, err := d.get(audio.Rate)
	if err != nil {
		return err
	}
	cf, err := carfac.NewFromCoefficients(coeffs, len(inputs))
	if err != nil {
		return err
	}
	if *openLoop {
		err = cf.RunOpen(buffer)
	} else {
		err = cf.Run(buffer)
	}
	if err != nil {
		return err
	}
	window := *fftWindow
	if window > cf.NumSamples() {
		window = cf.NumSamples()
	}
	for ear := 0; ear < cf.NumEars(); ear++ {
		nap, err := cf.EarNAP(ear)
		if err != nil {
			return err
		}
		cochleagram, err := features.Summarize(path, ear, features.Output{
			Values:      nap,
			NumChannels: cf.NumChannels(),
			SampleRate:  float64(cf.SampleRate()),
			Poles:       cf.Poles(),
		}, window, *keepValues)
		if err != nil {
			return err
		}
		if err := w.Write(cochleagram); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()
	if *wavGlob == "" || *output == "" {
		flag.Usage()
		os.Exit(1)
	}

	d := &designs{
		params: carfac.CARFACParams{},
		cache:  map[signals.Hz]*carfac.Coefficients{},
	}
	if *zeroVOffset {
		zero := 0.0
		d.params.VOffset = &zero
	}
	if *erbPerStep != 0.0 {
		d.params.ERBPerStep = erbPerStep
	}

	paths, err := doublestar.Glob(*wavGlob)
	if err != nil {
		log.Fatal(err)
	}
	if len(paths) == 0 {
		log.Fatalf("No files match %q", *wavGlob)
	}
	outFile, err := os.Create(*output)
	if err != nil {
		log.Fatal(err)
	}
	defer outFile.Close()
	w := features.NewWriter(outFile)

	log.Printf("Processing %v files", len(paths))
	bar := pb.StartNew(len(paths)).Prefix("Processing")
	wp := workerpool.New(*concurrency)
	for _, pathVar := range paths {
		path := pathVar
		wp.Go(path, func() error {
			defer bar.Increment()
			return process(path, d, w)
		})
	}
	err = wp.Wait()
	bar.Finish()
	if err != nil {
		log.Fatal(err)
	}
}
