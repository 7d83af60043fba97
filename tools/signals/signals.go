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

// Package signals synthesizes test signals and reads and writes audio.
package signals

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/mjibson/go-dsp/fft"
	"github.com/youpy/go-wav"
)

const (
	// FullScaleSinePower is 0.5 due to power = avg(sum(v^2)) - avg(v)^2.
	FullScaleSinePower Power = 0.5
)

// Hz is cycles per second.
type Hz float64

// Power is the signal power, which is equivalent to the variance ( avg(sum(v^2)) - avg(v)^2 ) of a signal.
type Power float64

// DB returns the power converted to Decibel.
func (p Power) DB() DB {
	return DB(10 * math.Log10(float64(p)))
}

// DB is power expressed on a logarithm scale.
type DB float64

// Gain returns the gain of this Decibel level.
func (d DB) Gain() float64 {
	return math.Pow(10, float64(d/20))
}

// Seconds is a duration or a point in time.
type Seconds float64

// Samples returns the number of samples in this duration at the given rate.
func (s Seconds) Samples(rate Hz) int {
	return int(math.Round(float64(s) * float64(rate)))
}

// Sine returns n samples of a sine with the given level relative to a full scale sine.
func Sine(f Hz, level DB, rate Hz, n int) Float64Slice {
	result := make(Float64Slice, n)
	amplitude := level.Gain()
	for idx := range result {
		result[idx] = amplitude * math.Sin(2*math.Pi*float64(f)*float64(idx)/float64(rate))
	}
	return result
}

// Impulse returns n samples where only the first is non zero.
func Impulse(amplitude float64, n int) Float64Slice {
	result := make(Float64Slice, n)
	if n > 0 {
		result[0] = amplitude
	}
	return result
}

// WhiteNoise returns n samples of noise with equal gain for all frequencies
// between lower (inclusive) and upper (exclusive), with the power of a full
// scale sine at the given level.
func WhiteNoise(lower, upper Hz, level DB, seed int64, rate Hz, n int) (Float64Slice, error) {
	if lower < 0 || upper > rate/2 || lower >= upper {
		return nil, fmt.Errorf("invalid noise band [%v, %v) at rate %v", lower, upper, rate)
	}
	coefficients := make([]complex128, n)
	freqStep := rate / Hz(n)
	fMinIdx := int(math.Round(float64(lower / freqStep)))
	fMaxIdx := int(math.Round(float64(upper / freqStep)))
	if fMinIdx >= fMaxIdx {
		return nil, fmt.Errorf("noise band [%v, %v) is narrower than the frequency resolution %v", lower, upper, freqStep)
	}
	r := rand.New(rand.NewSource(seed))
	for i := fMinIdx; i < fMaxIdx; i++ {
		coefficients[i] = complex(r.NormFloat64(), r.NormFloat64())
	}
	samples := fft.IFFT(coefficients)
	result := make(Float64Slice, len(samples))
	for idx, sample := range samples {
		result[idx] = real(sample)
	}
	result.AddLevel(FullScaleSinePower.DB() - result.Power().DB() + level)
	return result, nil
}

// Float64Slice is a mono signal.
type Float64Slice []float64

// PowerCalculator calculates power of signals.
type PowerCalculator struct {
	sum          float64
	sumOfSquares float64
	len          float64
}

// Feed feeds the calculator the next sample.
func (p *PowerCalculator) Feed(f float64) {
	p.sum += f
	p.sumOfSquares += f * f
	p.len++
}

// Power returns the power of the fed samples.
func (p *PowerCalculator) Power() Power {
	mean := p.sum / p.len
	return Power(p.sumOfSquares/p.len - mean*mean)
}

// Power returns the power of the signal.
func (f Float64Slice) Power() Power {
	pc := &PowerCalculator{}
	for _, v := range f {
		pc.Feed(v)
	}
	return pc.Power()
}

// AddLevel amplifies the signal by d.
func (f Float64Slice) AddLevel(d DB) {
	gain := d.Gain()
	for idx := range f {
		f[idx] *= gain
	}
}

// ToFloat32 returns the signal as float32 values.
func (f Float64Slice) ToFloat32() []float32 {
	result := make([]float32, len(f))
	for idx, v := range f {
		result[idx] = float32(v)
	}
	return result
}

// Interleave returns one frame per sample, with one value per channel.
func Interleave(channels ...Float64Slice) ([]float32, error) {
	switch len(channels) {
	case 0:
		return nil, nil
	case 1:
		return channels[0].ToFloat32(), nil
	}
	n := len(channels[0])
	for _, channel := range channels {
		if len(channel) != n {
			return nil, fmt.Errorf("can't interleave channels of different lengths %v and %v", n, len(channel))
		}
	}
	result := make([]float32, n*len(channels))
	for channelIdx, channel := range channels {
		for sampleIdx, v := range channel {
			result[sampleIdx*len(channels)+channelIdx] = float32(v)
		}
	}
	return result, nil
}

// WriteWAV writes one or two channels of equal length as a 16 bit WAV file.
func WriteWAV(w io.Writer, rate Hz, channels ...Float64Slice) error {
	if len(channels) < 1 || len(channels) > 2 {
		return fmt.Errorf("can't write %v channels to a WAV file", len(channels))
	}
	n := len(channels[0])
	wavSamples := make([]wav.Sample, n)
	for channelIdx, channel := range channels {
		if len(channel) != n {
			return fmt.Errorf("can't write channels of different lengths %v and %v", n, len(channel))
		}
		for idx, v := range channel {
			wavSamples[idx].Values[channelIdx] = int(math.Max(-1, math.Min(1, v)) * float64(math.MaxInt16))
		}
	}
	buf := &bytes.Buffer{}
	wavWriter := wav.NewWriter(buf, uint32(n), uint16(len(channels)), uint32(rate), 16)
	if err := wavWriter.WriteSamples(wavSamples); err != nil {
		return err
	}
	_, err := io.Copy(w, buf)
	return err
}

// Audio is a decoded audio file.
type Audio struct {
	Rate     Hz
	Channels []Float64Slice
}

// WAVSource is what a WAV file can be decoded from, for example an *os.File or a *bytes.Reader.
type WAVSource interface {
	io.Reader
	io.ReaderAt
}

// ReadWAV decodes all samples of a WAV file, scaled to [-1, 1).
func ReadWAV(r WAVSource) (*Audio, error) {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, err
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("can't read WAV files with %v channels", format.NumChannels)
	}
	if format.BitsPerSample < 16 {
		return nil, fmt.Errorf("can't read WAV files with %v bits per sample", format.BitsPerSample)
	}
	scale := math.Pow(2, float64(format.BitsPerSample-1))
	result := &Audio{
		Rate:     Hz(format.SampleRate),
		Channels: make([]Float64Slice, format.NumChannels),
	}
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		for _, sample := range samples {
			for channelIdx := range result.Channels {
				result.Channels[channelIdx] = append(result.Channels[channelIdx], float64(sample.Values[channelIdx])/scale)
			}
		}
	}
	return result, nil
}
