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

// synthesize writes test signals for the cochlear model as WAV files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google-research/cochlea/tools/signals"
)

var (
	signal          = flag.String("signal", "sine", "The signal to synthesize, one of sine, impulse or noise.")
	frequency       = flag.Float64("frequency", 1000, "Frequency of the sine.")
	lowerLimit      = flag.Float64("lower_limit", 20, "Lowest frequency of the noise.")
	upperLimit      = flag.Float64("upper_limit", 8000, "Highest frequency of the noise.")
	level           = flag.Float64("level", -20, "Level in dB relative to a full scale sine. For the impulse this is its amplitude in dB.")
	seed            = flag.Int64("seed", 1, "Seed of the noise.")
	sampleRate      = flag.Float64("sample_rate", 48000.0, "Sample rate to use when synthesizing.")
	durationSeconds = flag.Float64("duration_seconds", 1.0, "Number of seconds to synthesize.")
	silentRight     = flag.Bool("silent_right", false, "Whether to write a stereo file with a silent right channel, to exercise cross ear coupling.")
	destination     = flag.String("destination", "", "WAV file to store the synthesized buffer in.")
)

func synthesize() (signals.Float64Slice, error) {
	rate := signals.Hz(*sampleRate)
	n := signals.Seconds(*durationSeconds).Samples(rate)
	switch *signal {
	case "sine":
		return signals.Sine(signals.Hz(*frequency), signals.DB(*level), rate, n), nil
	case "impulse":
		return signals.Impulse(signals.DB(*level).Gain(), n), nil
	case "noise":
		return signals.WhiteNoise(signals.Hz(*lowerLimit), signals.Hz(*upperLimit), signals.DB(*level), *seed, rate, n)
	}
	return nil, fmt.Errorf("unknown signal %q", *signal)
}

func main() {
	flag.Parse()
	if *destination == "" {
		flag.Usage()
		os.Exit(1)
	}

	samples, err := synthesize()
	if err != nil {
		log.Panic(err)
	}
	channels := []signals.Float64Slice{samples}
	if *silentRight {
		channels = append(channels, make(signals.Float64Slice, len(samples)))
	}

	writer, err := os.Create(*destination)
	if err != nil {
		log.Panic(err)
	}
	defer writer.Close()
	if err := signals.WriteWAV(writer, signals.Hz(*sampleRate), channels...); err != nil {
		log.Panic(err)
	}
}
