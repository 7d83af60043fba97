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

// Package features summarizes cochlear model output and stores it as tf.Example records.
package features

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/google-research/cochlea/tools/signals"
	"github.com/google-research/cochlea/tools/spectrum"
	"github.com/ryszard/tfutils/go/tfrecord"
	"gonum.org/v1/gonum/stat"
	"google.golang.org/protobuf/proto"

	proto1 "github.com/golang/protobuf/proto"
	tf "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

// Output is one ear's model output, ordered [sample][channel].
type Output struct {
	Values      []float32
	NumChannels int
	SampleRate  float64
	Poles       []float32
}

// Channel returns the values of one channel.
func (o Output) Channel(ch int) signals.Float64Slice {
	numSamples := len(o.Values) / o.NumChannels
	result := make(signals.Float64Slice, numSamples)
	for sample := range result {
		result[sample] = float64(o.Values[sample*o.NumChannels+ch])
	}
	return result
}

// Cochleagram is the summary of one ear's output for one input.
type Cochleagram struct {
	Source      string
	Ear         int
	SampleRate  float64
	NumChannels int
	NumSamples  int
	Poles       []float64
	// Mean and StdDev are per channel.
	Mean   []float64
	StdDev []float64
	// SignalPower and NoisePower are per channel spectrums of the last window.
	SignalPower [][]float64
	NoisePower  [][]float64
	// PeakFrequency and PeakSNR are the per channel bin with the highest
	// signal to noise ratio in the last window, and that ratio.
	PeakFrequency []float64
	PeakSNR       []float64
	// Values is the full output, only kept when asked for.
	Values []float64
}

// Summarize computes per channel statistics, and the spectrums of the last
// fftWindow samples of each channel. A zero fftWindow skips the spectrums.
func Summarize(source string, ear int, output Output, fftWindow int, keepValues bool) (*Cochleagram, error) {
	if output.NumChannels < 1 || len(output.Values)%output.NumChannels != 0 {
		return nil, fmt.Errorf("%v values isn't a whole number of frames of %v channels", len(output.Values), output.NumChannels)
	}
	numSamples := len(output.Values) / output.NumChannels
	if fftWindow > numSamples {
		return nil, fmt.Errorf("FFT window %v is longer than the %v samples", fftWindow, numSamples)
	}
	result := &Cochleagram{
		Source:      source,
		Ear:         ear,
		SampleRate:  output.SampleRate,
		NumChannels: output.NumChannels,
		NumSamples:  numSamples,
		Poles:       make([]float64, len(output.Poles)),
		Mean:        make([]float64, output.NumChannels),
		StdDev:      make([]float64, output.NumChannels),
	}
	for idx, pole := range output.Poles {
		result.Poles[idx] = float64(pole)
	}
	for ch := 0; ch < output.NumChannels; ch++ {
		channel := output.Channel(ch)
		result.Mean[ch], result.StdDev[ch] = stat.MeanStdDev(channel, nil)
		if fftWindow > 0 {
			spec := spectrum.Compute(channel[numSamples-fftWindow:], signals.Hz(output.SampleRate))
			result.SignalPower = append(result.SignalPower, dbToFloat64(spec.SignalPower))
			result.NoisePower = append(result.NoisePower, dbToFloat64(spec.NoisePower))
			peakF, peakSNR := spec.PeakSNR()
			result.PeakFrequency = append(result.PeakFrequency, float64(peakF))
			result.PeakSNR = append(result.PeakSNR, float64(peakSNR))
		}
	}
	if keepValues {
		result.Values = make([]float64, len(output.Values))
		for idx, v := range output.Values {
			result.Values[idx] = float64(v)
		}
	}
	return result, nil
}

func dbToFloat64(dbs []signals.DB) []float64 {
	result := make([]float64, len(dbs))
	for idx, db := range dbs {
		result[idx] = float64(db)
	}
	return result
}

func toTFExample(val reflect.Value, namePrefix string, ex *tf.Example) error {
	typ := val.Type()
	switch typ.Kind() {
	case reflect.String:
		ex.Features.Feature[namePrefix] = &tf.Feature{Kind: &tf.Feature_BytesList{BytesList: &tf.BytesList{Value: [][]byte{[]byte(val.String())}}}}
	case reflect.Int:
		ex.Features.Feature[namePrefix] = &tf.Feature{Kind: &tf.Feature_Int64List{Int64List: &tf.Int64List{Value: []int64{val.Int()}}}}
	case reflect.Float64:
		ex.Features.Feature[namePrefix] = &tf.Feature{Kind: &tf.Feature_FloatList{FloatList: &tf.FloatList{Value: []float32{float32(val.Float())}}}}
	case reflect.Slice:
		switch typ.Elem().Kind() {
		case reflect.Slice:
			for elemIdx := 0; elemIdx < val.Len(); elemIdx++ {
				if err := toTFExample(val.Index(elemIdx), fmt.Sprintf("%v[%v]", namePrefix, elemIdx), ex); err != nil {
					return err
				}
			}
		case reflect.Float64:
			if val.Len() == 0 {
				return nil
			}
			floats := make([]float32, val.Len())
			for idx := range floats {
				floats[idx] = float32(val.Index(idx).Float())
			}
			ex.Features.Feature[namePrefix] = &tf.Feature{Kind: &tf.Feature_FloatList{FloatList: &tf.FloatList{Value: floats}}}
		default:
			return fmt.Errorf("%v is of an invalid slice type %v", namePrefix, typ)
		}
	case reflect.Struct:
		for fieldIdx := 0; fieldIdx < typ.NumField(); fieldIdx++ {
			fieldTyp := typ.Field(fieldIdx)
			if fieldTyp.Tag.Get("proto") != "-" {
				if err := toTFExample(val.Field(fieldIdx), namePrefix+"."+fieldTyp.Name, ex); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("%v %v is of an invalid type %v", namePrefix, val.Interface(), typ)
	}
	return nil
}

// ToTFExample converts a Cochleagram to a tf.Example with one feature per
// field, named like "Cochleagram.Mean" or "Cochleagram.SignalPower[3]".
func (c *Cochleagram) ToTFExample() (*tf.Example, error) {
	ex := &tf.Example{
		Features: &tf.Features{
			Feature: map[string]*tf.Feature{},
		},
	}
	if err := toTFExample(reflect.ValueOf(*c), "Cochleagram", ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// Writer writes Cochleagrams as TFRecords of tf.Examples. It is safe for concurrent use.
type Writer struct {
	mutex sync.Mutex
	w     io.Writer
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one record.
func (w *Writer) Write(c *Cochleagram) error {
	ex, err := c.ToTFExample()
	if err != nil {
		return err
	}
	encoded, err := proto.Marshal(proto1.MessageV2(ex))
	if err != nil {
		return err
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return tfrecord.Write(w.w, encoded)
}
