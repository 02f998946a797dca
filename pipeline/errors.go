// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import "errors"

var (
	// ErrFragmentRepositoryRequired indicates a missing fragment repository.
	ErrFragmentRepositoryRequired = errors.New("fragment repository required")

	// ErrResultRepositoryRequired indicates a missing result repository.
	ErrResultRepositoryRequired = errors.New("result repository required")

	// ErrCacheRepositoryRequired indicates a missing cache repository.
	ErrCacheRepositoryRequired = errors.New("cache repository required")

	// ErrJobRepositoryRequired indicates a missing job repository.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrAIProviderRequired indicates a missing AI provider.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrCoordinatorClosed indicates an operation on a shut-down coordinator.
	ErrCoordinatorClosed = errors.New("coordinator is closed")

	// ErrInvalidMaxAttempts indicates a retry call with a non-positive
	// attempt budget.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrFlightTimeout indicates a single-flight claim that was force-
	// released by the watchdog because its leader went stale.
	ErrFlightTimeout = errors.New("single-flight claim timed out")
)
