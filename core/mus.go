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
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the stored record types. Timestamps are
// encoded as Unix microseconds, float32 values as their IEEE bit patterns,
// both varint-packed. Field order is part of the storage format; append new
// fields at the end only.

var (
	// IDMUS serializes an ID.
	IDMUS = idMUS{}
	// FragmentMUS serializes a Fragment.
	FragmentMUS = fragmentMUS{}
	// GeneratedResultMUS serializes a GeneratedResult.
	GeneratedResultMUS = generatedResultMUS{}
	// ProductMUS serializes a Product.
	ProductMUS = productMUS{}
	// CacheEntryMUS serializes a CacheEntry.
	CacheEntryMUS = cacheEntryMUS{}
	// JobMUS serializes a Job.
	JobMUS = jobMUS{}
)

var errNegativeLength = errors.New("negative length")

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// time helpers

func marshalTime(t time.Time, bs []byte) int {
	return varint.Uint64.Marshal(uint64(t.UnixMicro()), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(int64(v)).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Uint64.Size(uint64(t.UnixMicro()))
}

// []float32 helpers

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint64.Marshal(uint64(math.Float32bits(f)), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		bits, n1, err := varint.Uint64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(uint32(bits))
	}
	return v, n, nil
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint64.Size(uint64(math.Float32bits(f)))
	}
	return size
}

// []ID helpers

func marshalIDs(ids []ID, bs []byte) (n int) {
	n = varint.Int.Marshal(len(ids), bs)
	for _, id := range ids {
		n += IDMUS.Marshal(id, bs[n:])
	}
	return n
}

func unmarshalIDs(bs []byte) (ids []ID, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	ids = make([]ID, length)
	for i := 0; i < length; i++ {
		id, n1, err := IDMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		ids[i] = id
	}
	return ids, n, nil
}

func sizeIDs(ids []ID) (size int) {
	size = varint.Int.Size(len(ids))
	for _, id := range ids {
		size += IDMUS.Size(id)
	}
	return size
}

// []string helpers

func marshalStrings(ss []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(ss), bs)
	for _, s := range ss {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalStrings(bs []byte) (ss []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	ss = make([]string, length)
	for i := 0; i < length; i++ {
		s, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		ss[i] = s
	}
	return ss, n, nil
}

func sizeStrings(ss []string) (size int) {
	size = varint.Int.Size(len(ss))
	for _, s := range ss {
		size += ord.String.Size(s)
	}
	return size
}

type fragmentMUS struct{}

func (fragmentMUS) Marshal(f Fragment, bs []byte) (n int) {
	n = IDMUS.Marshal(f.Id, bs)
	n += ord.String.Marshal(f.SourceDocumentId, bs[n:])
	n += ord.String.Marshal(f.Text, bs[n:])
	n += varint.Int.Marshal(f.PositionIndex, bs[n:])
	n += marshalVector(f.Vector, bs[n:])
	n += marshalTime(f.CreatedAt, bs[n:])
	return n
}

func (fragmentMUS) Unmarshal(bs []byte) (f Fragment, n int, err error) {
	f.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return f, n, err
	}
	var n1 int
	f.SourceDocumentId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return f, n, err
	}
	f.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return f, n, err
	}
	f.PositionIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return f, n, err
	}
	f.Vector, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return f, n, err
	}
	f.CreatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return f, n, err
}

func (fragmentMUS) Size(f Fragment) int {
	return IDMUS.Size(f.Id) +
		ord.String.Size(f.SourceDocumentId) +
		ord.String.Size(f.Text) +
		varint.Int.Size(f.PositionIndex) +
		sizeVector(f.Vector) +
		sizeTime(f.CreatedAt)
}

type generatedResultMUS struct{}

func (generatedResultMUS) Marshal(r GeneratedResult, bs []byte) (n int) {
	n = IDMUS.Marshal(r.Id, bs)
	n += ord.String.Marshal(r.QueryOrTopic, bs[n:])
	n += ord.String.Marshal(r.Content, bs[n:])
	n += marshalIDs(r.SourceFragmentIds, bs[n:])
	n += marshalIDs(r.ProductIds, bs[n:])
	n += marshalTime(r.CreatedAt, bs[n:])
	return n
}

func (generatedResultMUS) Unmarshal(bs []byte) (r GeneratedResult, n int, err error) {
	r.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	var n1 int
	r.QueryOrTopic, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.SourceFragmentIds, n1, err = unmarshalIDs(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.ProductIds, n1, err = unmarshalIDs(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.CreatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return r, n, err
}

func (generatedResultMUS) Size(r GeneratedResult) int {
	return IDMUS.Size(r.Id) +
		ord.String.Size(r.QueryOrTopic) +
		ord.String.Size(r.Content) +
		sizeIDs(r.SourceFragmentIds) +
		sizeIDs(r.ProductIds) +
		sizeTime(r.CreatedAt)
}

type productMUS struct{}

func (productMUS) Marshal(p Product, bs []byte) (n int) {
	n = IDMUS.Marshal(p.Id, bs)
	n += ord.String.Marshal(p.Name, bs[n:])
	n += ord.String.Marshal(p.Category, bs[n:])
	n += marshalStrings(p.Tags, bs[n:])
	return n
}

func (productMUS) Unmarshal(bs []byte) (p Product, n int, err error) {
	p.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return p, n, err
	}
	var n1 int
	p.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.Category, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.Tags, n1, err = unmarshalStrings(bs[n:])
	n += n1
	return p, n, err
}

func (productMUS) Size(p Product) int {
	return IDMUS.Size(p.Id) +
		ord.String.Size(p.Name) +
		ord.String.Size(p.Category) +
		sizeStrings(p.Tags)
}

type cacheEntryMUS struct{}

func (cacheEntryMUS) Marshal(e CacheEntry, bs []byte) (n int) {
	n = ord.String.Marshal(e.Key, bs)
	n += GeneratedResultMUS.Marshal(e.Payload, bs[n:])
	n += marshalTime(e.ExpiresAt, bs[n:])
	n += varint.Uint64.Marshal(e.Version, bs[n:])
	return n
}

func (cacheEntryMUS) Unmarshal(bs []byte) (e CacheEntry, n int, err error) {
	e.Key, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return e, n, err
	}
	var n1 int
	e.Payload, n1, err = GeneratedResultMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.ExpiresAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.Version, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	return e, n, err
}

func (cacheEntryMUS) Size(e CacheEntry) int {
	return ord.String.Size(e.Key) +
		GeneratedResultMUS.Size(e.Payload) +
		sizeTime(e.ExpiresAt) +
		varint.Uint64.Size(e.Version)
}

type jobMUS struct{}

func (jobMUS) Marshal(j Job, bs []byte) (n int) {
	n = ord.String.Marshal(j.Id, bs)
	n += varint.Int.Marshal(int(j.Kind), bs[n:])
	n += varint.Int.Marshal(int(j.Status), bs[n:])
	n += varint.Int.Marshal(j.Attempts, bs[n:])
	n += ord.String.Marshal(j.Payload.DocumentText, bs[n:])
	n += ord.String.Marshal(j.Payload.SourceId, bs[n:])
	n += ord.String.Marshal(j.Payload.Query, bs[n:])
	n += ord.Bool.Marshal(j.Payload.Refresh, bs[n:])
	n += IDMUS.Marshal(j.ResultId, bs[n:])
	n += ord.Bool.Marshal(j.FromCache, bs[n:])
	n += ord.Bool.Marshal(j.Canceled, bs[n:])
	n += ord.String.Marshal(j.ErrorKind, bs[n:])
	n += ord.String.Marshal(j.ErrorMessage, bs[n:])
	n += marshalTime(j.EnqueuedAt, bs[n:])
	n += marshalTime(j.UpdatedAt, bs[n:])
	return n
}

func (jobMUS) Unmarshal(bs []byte) (j Job, n int, err error) {
	j.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return j, n, err
	}
	var (
		n1 int
		v  int
	)
	v, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Kind = JobKind(v)
	v, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Status = JobStatus(v)
	j.Attempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Payload.DocumentText, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Payload.SourceId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Payload.Query, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Payload.Refresh, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.ResultId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.FromCache, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.Canceled, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.ErrorKind, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.EnqueuedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return j, n, err
	}
	j.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return j, n, err
}

func (jobMUS) Size(j Job) int {
	return ord.String.Size(j.Id) +
		varint.Int.Size(int(j.Kind)) +
		varint.Int.Size(int(j.Status)) +
		varint.Int.Size(j.Attempts) +
		ord.String.Size(j.Payload.DocumentText) +
		ord.String.Size(j.Payload.SourceId) +
		ord.String.Size(j.Payload.Query) +
		ord.Bool.Size(j.Payload.Refresh) +
		IDMUS.Size(j.ResultId) +
		ord.Bool.Size(j.FromCache) +
		ord.Bool.Size(j.Canceled) +
		ord.String.Size(j.ErrorKind) +
		ord.String.Size(j.ErrorMessage) +
		sizeTime(j.EnqueuedAt) +
		sizeTime(j.UpdatedAt)
}
