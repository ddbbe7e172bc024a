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

package ebr

import "fmt"

const (
	defaultName         = "default"
	defaultRegistryHint = 64
)

// Config holds Collector creation parameters.
type Config struct {
	// Name identifies the collector in logs and metric labels.
	Name string
	// RegistryHint is the expected number of concurrent participants. It
	// sizes the participant table and its free-slot list up front.
	RegistryHint int
	// Observer receives collector events. Nil means no observer.
	Observer Observer
}

// DefaultConfig returns the configuration used by Default and by New(nil).
func DefaultConfig() *Config {
	return &Config{
		Name:         defaultName,
		RegistryHint: defaultRegistryHint,
	}
}

// VerifyConfig reports whether config can build a Collector.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidConfig)
	}
	if config.RegistryHint < 0 {
		return fmt.Errorf("%w: negative registry hint %d", ErrInvalidConfig, config.RegistryHint)
	}
	return nil
}
