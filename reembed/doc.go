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


// Package reembed regenerates the vectors of every indexed fragment with a
// (typically new) embedding model. It is an offline maintenance operation:
// run it while no pipeline workers are serving searches, since the index
// holds mixed vector dimensions until the pass completes.
//
// The Reembedder walks the whole fragment index in batches, embeds each
// batch's text with retry and exponential backoff, normalizes the resulting
// vectors and writes them back in place. Progress is reported to a writer
// at a configurable interval.
package reembed
