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

import (
	"fmt"
	"strings"
)

// ValidateFragment validates a Fragment according to domain rules.
//
// Validation rules:
//   - Id must be non-zero (fragments use content-derived IDs)
//   - SourceDocumentId must not be empty
//   - Text must not be empty
//   - PositionIndex must not be negative
//
// NOT validated:
//   - Vector (empty until the embedding stage runs; dimensionality is
//     enforced by the vector index on insert)
func ValidateFragment(fragment *Fragment) error {
	if fragment == nil {
		return fmt.Errorf("%w: fragment is nil", ErrInvalidInput)
	}
	if fragment.Id == 0 {
		return fmt.Errorf("%w: fragment id is zero", ErrInvalidInput)
	}
	if fragment.SourceDocumentId == "" {
		return fmt.Errorf("%w: fragment source document id is empty", ErrInvalidInput)
	}
	if fragment.Text == "" {
		return fmt.Errorf("%w: fragment text is empty", ErrInvalidInput)
	}
	if fragment.PositionIndex < 0 {
		return fmt.Errorf("%w: fragment position index %d is negative", ErrInvalidInput, fragment.PositionIndex)
	}
	return nil
}

// ValidateProduct validates a Product according to domain rules.
func ValidateProduct(product *Product) error {
	if product == nil {
		return fmt.Errorf("%w: product is nil", ErrInvalidInput)
	}
	if product.Name == "" {
		return fmt.Errorf("%w: product name is empty", ErrInvalidInput)
	}
	if product.Category == "" {
		return fmt.Errorf("%w: product category is empty", ErrInvalidInput)
	}
	return nil
}

// ValidateJob validates a Job's submission-time fields.
func ValidateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidInput)
	}
	if job.Id == "" {
		return fmt.Errorf("%w: job id is empty", ErrInvalidInput)
	}
	switch job.Kind {
	case JobKindIngest:
		if strings.TrimSpace(job.Payload.DocumentText) == "" {
			return fmt.Errorf("%w: ingest document text is empty", ErrInvalidInput)
		}
		if job.Payload.SourceId == "" {
			return fmt.Errorf("%w: ingest source id is empty", ErrInvalidInput)
		}
	case JobKindQuery:
		if strings.TrimSpace(job.Payload.Query) == "" {
			return fmt.Errorf("%w: query text is empty", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown job kind %d", ErrInvalidInput, job.Kind)
	}
	return nil
}
