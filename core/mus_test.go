package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentMUSRoundTrip(t *testing.T) {
	fragment := Fragment{
		Id:               IDFromContent("doc-1#2"),
		SourceDocumentId: "doc-1",
		Text:             "a bounded slice of source text",
		PositionIndex:    2,
		Vector:           []float32{0.25, -1.5, 0, 3.75},
		CreatedAt:        time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	bs := make([]byte, FragmentMUS.Size(fragment))
	n := FragmentMUS.Marshal(fragment, bs)
	require.Equal(t, len(bs), n)

	got, n, err := FragmentMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Equal(t, fragment, got)
}

func TestJobMUSRoundTrip(t *testing.T) {
	job := Job{
		Id:       "0c9c2b2e-1b3a-4d6b-9f1e-6f1f62d3a111",
		Kind:     JobKindQuery,
		Status:   JobFailed,
		Attempts: 2,
		Payload: JobPayload{
			Query:   "solar panels",
			Refresh: true,
		},
		ResultId:     IDFromContent("result"),
		FromCache:    false,
		Canceled:     false,
		ErrorKind:    KindGenerationUnavailable,
		ErrorMessage: "generation capability unavailable",
		EnqueuedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
	}

	bs := make([]byte, JobMUS.Size(job))
	n := JobMUS.Marshal(job, bs)
	require.Equal(t, len(bs), n)

	got, _, err := JobMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestCacheEntryMUSRoundTrip(t *testing.T) {
	entry := CacheEntry{
		Key: CacheKeyForQuery("solar panels"),
		Payload: GeneratedResult{
			Id:                IDFromContent("result"),
			QueryOrTopic:      "solar panels",
			Content:           "Solar panels convert sunlight into electricity.",
			SourceFragmentIds: []ID{1, 2, 3},
			ProductIds:        []ID{42},
			CreatedAt:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		ExpiresAt: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		Version:   7,
	}

	bs := make([]byte, CacheEntryMUS.Size(entry))
	n := CacheEntryMUS.Marshal(entry, bs)
	require.Equal(t, len(bs), n)

	got, _, err := CacheEntryMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestUnmarshalTruncated(t *testing.T) {
	fragment := Fragment{
		Id:               1,
		SourceDocumentId: "doc-1",
		Text:             "text",
		PositionIndex:    0,
		Vector:           []float32{1, 2},
		CreatedAt:        time.Now().UTC(),
	}
	bs := make([]byte, FragmentMUS.Size(fragment))
	FragmentMUS.Marshal(fragment, bs)

	_, _, err := FragmentMUS.Unmarshal(bs[:len(bs)/2])
	assert.Error(t, err)
}
