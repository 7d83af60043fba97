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
package workerpool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConcurrencyLimit(t *testing.T) {
	wp := New(10)
	var running int64
	var maxRunning int64
	for j := 0; j < 100; j++ {
		wp.Go(fmt.Sprint(j), func() error {
			now := atomic.AddInt64(&running, 1)
			for {
				seen := atomic.LoadInt64(&maxRunning)
				if now <= seen || atomic.CompareAndSwapInt64(&maxRunning, seen, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		t.Fatal(err)
	}
	if maxRunning > 10 {
		t.Errorf("Got %v concurrent jobs, wanted at most 10", maxRunning)
	}
	if maxRunning < 2 {
		t.Errorf("Got %v concurrent jobs, wanted them to run concurrently", maxRunning)
	}
}

func TestErrors(t *testing.T) {
	errBroken := errors.New("broken")
	wp := New(0)
	for _, name := range []string{"c.wav", "a.wav", "b.wav"} {
		name := name
		wp.Go(name, func() error {
			if name == "b.wav" {
				return nil
			}
			return errBroken
		})
	}
	err := wp.Wait()
	me, ok := err.(MultiErr)
	if !ok {
		t.Fatalf("Got %v, wanted a MultiErr", err)
	}
	got := []string{}
	for _, e := range me {
		got = append(got, e.Error())
	}
	if diff := cmp.Diff([]string{"a.wav: broken", "c.wav: broken"}, got); diff != "" {
		t.Errorf("Errors: -want +got:\n%v", diff)
	}
	if !errors.Is(err, errBroken) {
		t.Errorf("%v should be %v", err, errBroken)
	}
	if err := New(2).Wait(); err != nil {
		t.Errorf("Got %v from an empty pool, wanted nil", err)
	}
}
