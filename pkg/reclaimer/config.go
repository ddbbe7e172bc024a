/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reclaimer

import (
	"fmt"
	"time"
)

const (
	defaultInterval        = 100 * time.Millisecond
	defaultPressurePercent = 90
	defaultPressureRounds  = 3
	defaultMaxWait         = 5 * time.Second
)

// Config holds Reclaimer parameters.
type Config struct {
	// Interval between background collections.
	Interval time.Duration
	// PressurePercent is the host memory usage at which Run collects
	// synchronously. Zero disables memory sampling.
	PressurePercent float64
	// PressureRounds is the number of extra collections per tick under
	// memory pressure. Two rounds cover one grace period.
	PressureRounds int
	// MaxWait bounds Synchronize and Close.
	MaxWait time.Duration
}

// DefaultConfig returns the default reclaimer configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:        defaultInterval,
		PressurePercent: defaultPressurePercent,
		PressureRounds:  defaultPressureRounds,
		MaxWait:         defaultMaxWait,
	}
}

// VerifyConfig reports whether config can build a Reclaimer.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, config.Interval)
	}
	if config.PressurePercent < 0 || config.PressurePercent > 100 {
		return fmt.Errorf("%w: pressure percent %.1f out of [0,100]", ErrInvalidConfig, config.PressurePercent)
	}
	if config.PressureRounds < 0 {
		return fmt.Errorf("%w: negative pressure rounds %d", ErrInvalidConfig, config.PressureRounds)
	}
	if config.MaxWait <= 0 {
		return fmt.Errorf("%w: max wait must be positive, got %s", ErrInvalidConfig, config.MaxWait)
	}
	return nil
}
