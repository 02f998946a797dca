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


package reembed

import (
	"context"

	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

const (
	// DefaultBatchSize is the default number of fragments to process per batch
	DefaultBatchSize = 100
)

// FragmentIterator iterates over all indexed fragments in batches.
type FragmentIterator struct {
	repo      storage.FragmentRepository
	batchSize int
}

// NewFragmentIterator creates a new fragment iterator.
// batchSize: number of fragments per batch (must be > 0)
func NewFragmentIterator(repo storage.FragmentRepository, batchSize int) *FragmentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &FragmentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach iterates over all fragments, calling fn for each batch.
// Iteration stops on the first error from fn or when all fragments are
// processed. Context cancellation is checked between batches.
func (it *FragmentIterator) ForEach(ctx context.Context, fn func([]*core.Fragment) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fragments, err := it.repo.AllFragments(ctx)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		return nil
	}

	for i := 0; i < len(fragments); i += it.batchSize {
		end := i + it.batchSize
		if end > len(fragments) {
			end = len(fragments)
		}

		if err := fn(fragments[i:end]); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}
