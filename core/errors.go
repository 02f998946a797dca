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


package core

import "errors"

// Failure taxonomy. Every error that crosses a component boundary wraps one of
// these sentinels so the coordinator can decide retry vs escalate vs degrade
// and the job-status reader can surface a stable kind.
var (
	// ErrInvalidInput indicates malformed caller input. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding capability failed after
	// its own retry budget. Retryable at the job level.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrGenerationUnavailable indicates the generation capability failed after
	// its own retry budget. Retryable at the job level.
	ErrGenerationUnavailable = errors.New("generation capability unavailable")

	// ErrRecommendationUnavailable indicates the recommendation capability
	// failed. The query path degrades to an empty product list instead of
	// failing the job.
	ErrRecommendationUnavailable = errors.New("recommendation capability unavailable")

	// ErrStorageFailure indicates an I/O error in the vector index, cache
	// store or job queue. Retryable at the job level.
	ErrStorageFailure = errors.New("storage failure")

	// ErrCanceled indicates the job was canceled between stages. Terminal.
	ErrCanceled = errors.New("canceled")
)

// Stable error kind identifiers surfaced through job status.
const (
	KindInvalidInput              = "InvalidInput"
	KindEmbeddingUnavailable      = "EmbeddingUnavailable"
	KindGenerationUnavailable     = "GenerationUnavailable"
	KindRecommendationUnavailable = "RecommendationUnavailable"
	KindStorageFailure            = "StorageFailure"
	KindCanceled                  = "Canceled"
	KindInternal                  = "Internal"
)

// ErrorKind maps an error to its stable kind identifier.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrEmbeddingUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, ErrGenerationUnavailable):
		return KindGenerationUnavailable
	case errors.Is(err, ErrRecommendationUnavailable):
		return KindRecommendationUnavailable
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Retryable reports whether a failed job carrying this error is eligible for
// a queue-level retry. Invalid input and cancellation are terminal; transient
// capability and storage failures are not.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCanceled):
		return false
	case errors.Is(err, ErrEmbeddingUnavailable),
		errors.Is(err, ErrGenerationUnavailable),
		errors.Is(err, ErrStorageFailure):
		return true
	default:
		return false
	}
}
