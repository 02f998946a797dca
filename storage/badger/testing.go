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


package badger

import "github.com/poiesic/contentforge/storage"

// Stores bundles all repositories over a shared backend.
type Stores struct {
	Fragments storage.FragmentRepository
	Results   storage.ResultRepository
	Products  storage.ProductRepository
	Cache     storage.CacheRepository
	Jobs      storage.JobRepository
}

// Close closes all repositories. The backend is closed separately.
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{
		s.Fragments, s.Results, s.Products, s.Cache, s.Jobs,
	} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewStores creates all repositories over an already-open backend.
func NewStores(backend *Backend, cacheOpts ...CacheOption) (*Stores, error) {
	fragments, err := NewFragmentRepository(backend)
	if err != nil {
		return nil, err
	}
	results, err := NewResultRepository(backend)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(backend)
	if err != nil {
		return nil, err
	}
	cache, err := NewCacheRepository(backend, cacheOpts...)
	if err != nil {
		return nil, err
	}
	jobs, err := NewJobRepository(backend)
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &Stores{
		Fragments: fragments,
		Results:   results,
		Products:  products,
		Cache:     cache,
		Jobs:      jobs,
	}, nil
}

// NewMemoryStores creates in-memory repositories for testing.
// Caller must close the stores and backend when done.
func NewMemoryStores(cacheOpts ...CacheOption) (*Stores, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, err
	}

	stores, err := NewStores(backend, cacheOpts...)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return stores, backend, nil
}
