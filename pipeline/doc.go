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


// Package pipeline coordinates the asynchronous retrieval pipeline.
//
// The Coordinator dispatches durable jobs from the queue to a bounded
// worker pool and runs two state machines:
//
//   - Ingest: chunk the document, embed the chunks in rate-limited batches,
//     insert them idempotently into the vector index, then best-effort
//     invalidate cache entries made stale by the new fragments.
//
//   - Query: check the cache, claim a single-flight slot so concurrent
//     identical queries compute once, retrieve the nearest fragments,
//     generate content from them, rank products against the content
//     (degrading to an empty list on failure), and write the result back
//     to the cache with a TTL.
//
// Failures are classified through the core error taxonomy: transient
// capability and storage failures are retried at the job level with the
// attempt budget, invalid input and cancellation settle the job
// immediately, and recommendation failures degrade instead of failing.
package pipeline
