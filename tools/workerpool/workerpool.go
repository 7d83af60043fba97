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

// Package workerpool runs named jobs on a bounded number of goroutines.
package workerpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MultiErr contains multiple errors.
type MultiErr []error

// Error returns a string representation of the multi error.
func (m MultiErr) Error() string {
	return fmt.Sprint([]error(m))
}

// Is returns whether any of the errors is target.
func (m MultiErr) Is(target error) bool {
	for _, err := range m {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type job struct {
	name string
	f    func() error
}

// WorkerPool runs a limited number of error handling goroutines concurrently.
type WorkerPool struct {
	queue  chan job
	errors chan error
}

// Go will run the function. Its error, if any, is prefixed with name.
// Go blocks while the pool is at its concurrency limit.
func (w *WorkerPool) Go(name string, f func() error) {
	w.queue <- job{name: name, f: f}
}

// Wait stops accepting jobs, waits for all submitted jobs to finish and
// returns their errors as a MultiErr sorted by message, or nil.
func (w *WorkerPool) Wait() error {
	close(w.queue)
	me := MultiErr{}
	for err := range w.errors {
		if err != nil {
			me = append(me, err)
		}
	}
	if len(me) == 0 {
		return nil
	}
	sort.Slice(me, func(i, j int) bool {
		return me[i].Error() < me[j].Error()
	})
	return me
}

// New returns a new worker pool. A concurrency of 0 or less means no limit.
func New(concurrency int) *WorkerPool {
	w := &WorkerPool{
		queue:  make(chan job),
		errors: make(chan error),
	}

	go func() {
		wg := &sync.WaitGroup{}
		var tickets chan struct{}
		if concurrency > 0 {
			tickets = make(chan struct{}, concurrency)
		}
		for jobVar := range w.queue {
			j := jobVar
			if tickets != nil {
				tickets <- struct{}{}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := j.f()
				if tickets != nil {
					<-tickets
				}
				if err != nil {
					err = fmt.Errorf("%v: %w", j.name, err)
				}
				w.errors <- err
			}()
		}
		wg.Wait()
		close(w.errors)
	}()
	return w
}
