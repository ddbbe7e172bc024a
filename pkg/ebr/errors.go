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

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalancedExit is raised when Exit is called with no matching Enter.
	ErrUnbalancedExit = errors.New("exit without a matching enter")
	// ErrDeferOutsideProtected is raised when Defer is called outside a
	// protected region.
	ErrDeferOutsideProtected = errors.New("defer outside a protected region")
	// ErrLeaveWhileProtected is raised when a participant leaves its
	// collector while still inside a protected region.
	ErrLeaveWhileProtected = errors.New("leave inside a protected region")
	// ErrNilTask is raised when a nil task is deferred.
	ErrNilTask = errors.New("nil task")
	// ErrParticipantClosed is raised when a participant is used after Leave.
	ErrParticipantClosed = errors.New("participant already left")
	// ErrInvalidConfig is wrapped by every configuration error.
	ErrInvalidConfig = errors.New("invalid config")
)

// ContractError is the panic value for caller misuse. These are never
// retried: they mean the calling code broke an invariant the collector relies
// on for safety.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return "ebr: " + e.Op + ": " + e.Err.Error()
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// TaskPanicError records a deferred task that panicked while its bucket was
// being drained.
type TaskPanicError struct {
	Epoch Epoch
	Value interface{}
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("ebr: deferred task from epoch %s panicked: %v", e.Epoch, e.Value)
}

// fatal reports the caller of the public method that detected the misuse.
func fatal(log *logger, op string, err error) {
	log.output(levelError, 1, "%s: %v", op, err)
	panic(&ContractError{Op: op, Err: err})
}
