package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/contentforge/core"
)

// Key prefixes for different data types
const (
	fragmentRecordPrefix = "fragrec"
	fragmentSourcePrefix = "fragsrc"
	fragmentDimKey       = "fragmeta:dim"
	resultRecordPrefix   = "genres"
	productRecordPrefix  = "prodrec"
	productCatPrefix     = "prodcat"
	cacheRecordPrefix    = "cacherec"
	cacheTagPrefix       = "cachetag"
	jobRecordPrefix      = "jobrec"
	jobPendingPrefix     = "jobpen"
	cacheVersionSeq      = "cacheverseq"
)

// makeFragmentKey generates a key for a fragment by ID.
func makeFragmentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", fragmentRecordPrefix, id))
}

// makeFragmentSourceKey generates a composite key for the source index.
// Format: prefix:sourceDocumentId:positionIndex:id — BigEndian so iteration
// yields fragments in position order.
func makeFragmentSourceKey(sourceDocumentId string, positionIndex int, id core.ID) []byte {
	prefix := fragmentSourcePrefix + ":" + sourceDocumentId + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+16)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(positionIndex))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialFragmentSourceKey generates the iteration prefix for a source.
func makePartialFragmentSourceKey(sourceDocumentId string) []byte {
	return []byte(fragmentSourcePrefix + ":" + sourceDocumentId + ":")
}

// makeResultKey generates a key for a generated result by ID.
func makeResultKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", resultRecordPrefix, id))
}

// makeProductKey generates a key for a product by ID.
func makeProductKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", productRecordPrefix, id))
}

// makeProductCategoryKey generates a composite key for the category index.
// Format: prefix:category:id. Category must already be lowercased.
func makeProductCategoryKey(category string, id core.ID) []byte {
	prefix := productCatPrefix + ":" + category + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialProductCategoryKey generates the iteration prefix for a category.
func makePartialProductCategoryKey(category string) []byte {
	return []byte(productCatPrefix + ":" + category + ":")
}

// makeCacheKey generates the physical key for a cache entry.
// The logical key is embedded verbatim so prefix invalidation can scan it.
func makeCacheKey(key string) []byte {
	return []byte(cacheRecordPrefix + ":" + key)
}

// makeCacheTagKey generates a composite key for the tag index.
// Format: prefix:tag:logicalKey.
func makeCacheTagKey(tag, key string) []byte {
	return []byte(cacheTagPrefix + ":" + tag + ":" + key)
}

// makePartialCacheTagKey generates the iteration prefix for a tag.
func makePartialCacheTagKey(tag string) []byte {
	return []byte(cacheTagPrefix + ":" + tag + ":")
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return []byte(jobRecordPrefix + ":" + id)
}

// makeJobPendingKey generates a composite key for the pending-job index.
// Format: prefix:enqueuedAtMicros:id — BigEndian so iteration yields the
// oldest queued job first.
func makeJobPendingKey(enqueuedAtMicros int64, id string) []byte {
	prefix := jobPendingPrefix + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8+len(id))
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(enqueuedAtMicros))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}
