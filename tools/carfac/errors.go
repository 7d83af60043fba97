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
	"fmt"
)

var (
	// ErrConfiguration is returned when parameters, pole frequencies or coefficient
	// vectors can't produce a valid model. It is never worth retrying.
	ErrConfiguration = errors.New("carfac: configuration error")

	// ErrNumericInstability is returned by a step that produced NaN/Inf values or
	// a pole radius outside (0, 1). The Ear that returned it stays failed until Reset.
	ErrNumericInstability = errors.New("carfac: numeric instability")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrConfiguration, fmt.Sprintf(format, args...))
}

func instabilityErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrNumericInstability, fmt.Sprintf(format, args...))
}
