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


// Package storage defines the persistence interfaces for the retrieval
// pipeline: fragments (the vector index), generated results, the product
// catalog, the TTL cache and the durable job queue.
//
// Implementations live in subpackages (storage/badger). All repositories
// must be safe for concurrent use. Records are serialized with the MUS
// binary format defined in core.
package storage
