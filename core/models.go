package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// CacheKeyPrefix is the key prefix shared by all query cache entries.
// Invalidating this prefix clears the whole query cache.
const CacheKeyPrefix = "query:"

// stopwords are removed during query normalization so that trivially different
// phrasings of the same topic resolve to the same cache key.
var stopwords = map[string]bool{
	"and": true, "or": true, "the": true, "a": true, "an": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true,
	"by": true, "about": true, "explain": true, "me": true,
}

// NormalizeQuery lowercases a query, collapses whitespace and strips stopwords.
// The result is the canonical form used for cache keying and single-flight
// deduplication. If every word is a stopword the lowercased words are kept,
// so a query never normalizes to the empty string unless it was blank.
func NormalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !stopwords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words
	}
	return strings.Join(kept, " ")
}

// CacheKeyForQuery computes the deterministic cache key for a query string.
// The key is the hex form of a BLAKE2b hash over the normalized query.
func CacheKeyForQuery(query string) string {
	normalized := NormalizeQuery(query)
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(normalized))
	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Fragment is a bounded slice of source document text with its embedding vector.
// Text and position are immutable once inserted into the vector index; the
// vector may be rewritten by an offline re-embedding pass.
type Fragment struct {
	Id               ID
	SourceDocumentId string
	Text             string
	PositionIndex    int       // Position of the fragment within its source document
	Vector           []float32 // Embedding vector (populated by the ingest pipeline)
	CreatedAt        time.Time
}

// FragmentMatch is a fragment returned from a vector search together with its
// cosine distance from the query vector. Lower distance means more similar.
type FragmentMatch struct {
	Fragment *Fragment
	Distance float32
}

// GeneratedResult is the durable output of one successful query pipeline run.
// Results are never mutated; a newer result for the same query supersedes the
// older one in the cache only.
type GeneratedResult struct {
	Id                ID
	QueryOrTopic      string
	Content           string
	SourceFragmentIds []ID // Fragments used as generation context, in retrieval order
	ProductIds        []ID // Recommended products, in rank order
	CreatedAt         time.Time
}

// WordCount returns the number of whitespace-separated words in the content.
func (r *GeneratedResult) WordCount() int {
	return len(strings.Fields(r.Content))
}

// Product is a catalog record that the recommendation capability ranks against
// generated content.
type Product struct {
	Id       ID
	Name     string
	Category string
	Tags     []string
}

// CacheEntry wraps a GeneratedResult for the query cache. The entry carries its
// own expiry so reads can lazily treat stale entries as misses.
type CacheEntry struct {
	Key       string
	Payload   GeneratedResult
	ExpiresAt time.Time
	Version   uint64 // Last-write-wins ordering for concurrent puts
}

// Expired reports whether the entry is stale at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// JobKind identifies the pipeline path a job executes.
type JobKind int

const (
	// JobKindIngest is a document ingestion job (chunk, embed, index).
	JobKindIngest JobKind = iota + 1
	// JobKindQuery is a query job (retrieve, generate, recommend).
	JobKindQuery
)

func (k JobKind) String() string {
	switch k {
	case JobKindIngest:
		return "ingest"
	case JobKindQuery:
		return "query"
	default:
		return fmt.Sprintf("JobKind(%d)", int(k))
	}
}

// JobStatus is the lifecycle state of a job. Transitions are monotonic except
// for the retry edge (failed -> queued) taken while attempts remain.
type JobStatus int

const (
	// JobQueued means the job is waiting for a worker.
	JobQueued JobStatus = iota + 1
	// JobRunning means a worker is executing the job.
	JobRunning
	// JobSucceeded is terminal success.
	JobSucceeded
	// JobFailed is failure; terminal once the retry budget is exhausted.
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobStatus(%d)", int(s))
	}
}

// JobPayload carries the kind-specific inputs of a job.
type JobPayload struct {
	DocumentText string // Ingest: raw extracted document text
	SourceId     string // Ingest: source document identifier
	Query        string // Query: topic/query text
	Refresh      bool   // Query: warm-up flag; refreshes the cache TTL on a hit
}

// Job is a unit of asynchronous work tracked by the job queue. Callers only
// ever read jobs by id; the queue and coordinator own all transitions.
type Job struct {
	Id           string // UUID
	Kind         JobKind
	Status       JobStatus
	Attempts     int
	Payload      JobPayload
	ResultId     ID   // Set on query success
	FromCache    bool // Query: whether the response came from the cache
	Canceled     bool // Cooperative cancellation flag, checked at stage boundaries
	ErrorKind    string
	ErrorMessage string
	EnqueuedAt   time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// ProductRef is the response-level view of a recommended product.
type ProductRef struct {
	Id       ID
	Name     string
	Category string
}

// QueryResponse is the payload returned for a completed query job.
type QueryResponse struct {
	Content           string
	WordCount         int
	SourceFragmentIds []ID
	Products          []ProductRef
	FromCache         bool
}
